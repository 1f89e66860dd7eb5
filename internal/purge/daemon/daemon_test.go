package daemon_test

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
	"github.com/edgecomet/cfpurge/internal/purge/daemon"
	"github.com/edgecomet/cfpurge/internal/purge/orchestrator"
	"github.com/edgecomet/cfpurge/internal/purge/triggers"
	"github.com/edgecomet/cfpurge/pkg/types"
)

func testConfig(baseURL string) *configtypes.PurgeDaemonConfig {
	return &configtypes.PurgeDaemonConfig{
		DaemonID: "purge-test",
		Site: configtypes.SiteConfig{
			HomeURL:      "https://example.com/",
			CategoryBase: "category",
			TagBase:      "tag",
			AuthorBase:   "author",
			ShowOnFront:  configtypes.ShowOnFrontPosts,
		},
		Provider: configtypes.ProviderConfig{BaseURL: baseURL},
		Options: configtypes.OptionStoreConfig{
			Backend: configtypes.OptionBackendMemory,
			Values: map[string]string{
				configtypes.OptionAPIEmail: "admin@example.com",
				configtypes.OptionAPIKey:   "global-key",
			},
		},
		Admin: configtypes.AdminConfig{NonceSecret: "nonce-secret"},
	}
}

func helloWorld() types.ChangedContent {
	return types.ChangedContent{
		ID:         42,
		Type:       "post",
		Status:     types.StatusPublish,
		Permalink:  "https://example.com/2024/05/hello-world/",
		Categories: []types.Term{{ID: 1, Slug: "news"}, {ID: 2, Slug: "sport"}},
		Tags:       []types.Term{{ID: 3, Slug: "football"}},
		Author:     &types.Author{ID: 7, Nicename: "jane"},
	}
}

var _ = Describe("PurgeDaemon", func() {
	var (
		provider *fakeProvider
		cfg      *configtypes.PurgeDaemonConfig
		d        *daemon.PurgeDaemon
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		provider = newFakeProvider()
		cfg = testConfig(provider.BaseURL())
	})

	JustBeforeEach(func() {
		var err error
		d, err = daemon.New(ctx, cfg, zap.NewNop())
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		if d != nil {
			_ = d.Shutdown(ctx)
		}
		provider.Close()
	})

	Describe("full zone purges", func() {
		It("purges everything on theme switch and caches the zone id", func() {
			action, ok := triggers.SwitchTheme()
			Expect(ok).To(BeTrue())

			Expect(d.Dispatch(ctx, action)).To(BeTrue())
			Expect(d.Dispatch(ctx, action)).To(BeTrue())

			lookups := provider.CallsTo(http.MethodGet, "zones")
			Expect(lookups).To(HaveLen(1))
			Expect(lookups[0].Query).To(Equal("name=example.com"))

			purges := provider.CallsTo(http.MethodDelete, "zones/zone-1/purge_cache")
			Expect(purges).To(HaveLen(2))
			Expect(purges[0].Body).To(Equal(map[string]interface{}{"purge_everything": true}))

			id, cached, err := d.Resolver().Cached(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(cached).To(BeTrue())
			Expect(id).To(Equal("zone-1"))
		})

		It("returns the success notice for a manual purge", func() {
			notice := d.ManualPurge(ctx)
			Expect(notice).ToNot(BeNil())
			Expect(notice.Level).To(Equal(orchestrator.NoticeSuccess))
			Expect(notice.Message).To(Equal("Cloudflare cache purge request sent - may take a minute."))
		})

		It("carries the provider message in the failure notice", func() {
			provider.SetPurgeResponse(`{"success":false,"errors":[{"code":10000,"message":"rate limited"}]}`)

			notice := d.ManualPurge(ctx)
			Expect(notice).ToNot(BeNil())
			Expect(notice.Level).To(Equal(orchestrator.NoticeError))
			Expect(notice.Message).To(Equal("Cloudflare cache purge request FAILED. Try again in a couple minutes. Message: rate limited"))
		})

		It("makes no purge call when the zone cannot be resolved", func() {
			provider.SetZones(`{"success":true,"errors":[],"result":[]}`)

			Expect(d.ManualPurge(ctx)).To(BeNil())
			action, _ := triggers.CachePurged("autoptimize")
			Expect(d.Dispatch(ctx, action)).To(BeFalse())

			Expect(provider.CallsTo(http.MethodDelete, "purge_cache")).To(BeEmpty())
		})

		It("looks the zone up again after a reset", func() {
			action, _ := triggers.SwitchTheme()
			Expect(d.Dispatch(ctx, action)).To(BeTrue())
			Expect(d.Resolver().Reset(ctx)).To(Succeed())
			Expect(d.Dispatch(ctx, action)).To(BeTrue())

			Expect(provider.CallsTo(http.MethodGet, "zones")).To(HaveLen(2))
		})
	})

	Describe("selective purges", func() {
		It("purges the affected URLs of a published post", func() {
			action, ok := triggers.TransitionPostStatus(types.StatusDraft, types.StatusPublish, helloWorld())
			Expect(ok).To(BeTrue())
			Expect(d.Dispatch(ctx, action)).To(BeTrue())

			purges := provider.CallsTo(http.MethodDelete, "zones/zone-1/purge_cache")
			Expect(purges).To(HaveLen(1))
			Expect(purges[0].Body).ToNot(HaveKey("purge_everything"))

			urls := files(purges[0])
			Expect(len(urls)).To(BeNumerically(">=", 12))
			Expect(urls).To(ContainElements(
				"https://example.com/category/news/",
				"https://example.com/category/sport/",
				"https://example.com/tag/football/",
				"https://example.com/author/jane/",
				"https://example.com/2024/05/hello-world/",
				"https://example.com/",
			))
		})

		It("sends one call per item of a deletion sweep", func() {
			second := helloWorld()
			second.ID = 43
			second.Permalink = "https://example.com/2024/05/second/"

			action, ok := triggers.ScheduledDelete([]types.ChangedContent{helloWorld(), second})
			Expect(ok).To(BeTrue())
			Expect(d.Dispatch(ctx, action)).To(BeTrue())

			Expect(provider.CallsTo(http.MethodDelete, "purge_cache")).To(HaveLen(2))
		})

		It("reports failure when the provider answers success=false", func() {
			provider.SetPurgeResponse(`{"success":false,"errors":[{"code":1012,"message":"Request must contain one of purge_everything or files"}]}`)

			action, _ := triggers.ContentChanged(triggers.HookSavePost, helloWorld())
			Expect(d.Dispatch(ctx, action)).To(BeFalse())
		})
	})

	Describe("coalescing", func() {
		BeforeEach(func() {
			cfg.Coalesce = configtypes.CoalesceConfig{
				Enabled: true,
				Window:  types.Duration(time.Hour),
			}
		})

		It("merges queued URLs into one call on shutdown", func() {
			first, _ := triggers.ContentChanged(triggers.HookSavePost, helloWorld())
			second, _ := triggers.ContentChanged(triggers.HookEditPost, helloWorld())

			Expect(d.Dispatch(ctx, first)).To(BeTrue())
			Expect(d.Dispatch(ctx, second)).To(BeTrue())
			Expect(provider.CallsTo(http.MethodDelete, "purge_cache")).To(BeEmpty())

			Expect(d.Shutdown(ctx)).To(Succeed())
			d = nil

			purges := provider.CallsTo(http.MethodDelete, "purge_cache")
			Expect(purges).To(HaveLen(1))
			urls := files(purges[0])
			Expect(urls).To(HaveLen(13))
			Expect(urls).To(ContainElement("https://example.com/2024/05/hello-world/"))
		})

		It("still sends full purges immediately", func() {
			action, _ := triggers.SwitchTheme()
			Expect(d.Dispatch(ctx, action)).To(BeTrue())
			Expect(provider.CallsTo(http.MethodDelete, "purge_cache")).To(HaveLen(1))
		})
	})

	Describe("hook API", func() {
		BeforeEach(func() {
			cfg.HTTPApi = configtypes.PurgeHTTPApi{
				Enabled:        true,
				Listen:         "127.0.0.1:0",
				RequestTimeout: types.Duration(5 * time.Second),
				AuthKey:        "internal-key",
			}
			cfg.Admin.PublicURL = "https://example.com/wp-admin/"
		})

		It("builds an admin purge link", func() {
			Expect(d.API()).ToNot(BeNil())
			link, err := d.API().PurgeLink("admin")
			Expect(err).ToNot(HaveOccurred())
			Expect(link).To(HavePrefix("https://example.com/wp-admin/?"))
			Expect(link).To(ContainSubstring("cloudflare_full_page_caching_purge_zone=1"))
			Expect(link).To(ContainSubstring("_wpnonce="))
		})
	})
})

var _ = Describe("New", func() {
	It("rejects a nil config", func() {
		_, err := daemon.New(context.Background(), nil, zap.NewNop())
		Expect(err).To(MatchError(ContainSubstring("daemon config is required")))
	})

	It("rejects an unknown option backend", func() {
		cfg := testConfig("https://api.example.test/")
		cfg.Options.Backend = "etcd"
		_, err := daemon.New(context.Background(), cfg, zap.NewNop())
		Expect(err).To(MatchError(ContainSubstring("unknown option store backend")))
	})
})
