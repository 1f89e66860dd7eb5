package collector

import (
	"strconv"
	"strings"

	"github.com/edgecomet/cfpurge/internal/common/configtypes"
	"github.com/edgecomet/cfpurge/internal/common/urlutil"
	"github.com/edgecomet/cfpurge/pkg/types"
)

// Links answers the host's link questions for one content item.
type Links interface {
	CategoryLink(term types.Term) string
	TagLink(term types.Term) string
	AuthorPostsLink(author types.Author) string
	AuthorFeedLink(author types.Author) string
	// PostTypeArchiveLink returns false when the type has no archive page.
	PostTypeArchiveLink(postType string) (string, bool)
	PostTypeArchiveFeedLink(postType string) string
	Permalink(content types.ChangedContent) string
	// SiteFeeds returns the rdf, rss, rss2, atom and comments rss2 feeds in that order.
	SiteFeeds() []string
	CommentsFeedLink(content types.ChangedContent) string
	HomeURL() string
	// PostsPageLink returns false unless the front page is a static page.
	PostsPageLink() (string, bool)
}

// PermalinkLinks derives links from pretty-permalink settings.
// Links supplied by the host on the content item take precedence.
type PermalinkLinks struct {
	home         string
	categoryBase string
	tagBase      string
	authorBase   string
	archiveTypes map[string]bool
	staticFront  bool
	postsPageURL string
}

func NewPermalinkLinks(site configtypes.SiteConfig) *PermalinkLinks {
	archives := make(map[string]bool, len(site.ArchivePostTypes))
	for _, t := range site.ArchivePostTypes {
		archives[t] = true
	}
	return &PermalinkLinks{
		home:         urlutil.JoinPath(site.HomeURL),
		categoryBase: baseOr(site.CategoryBase, "category"),
		tagBase:      baseOr(site.TagBase, "tag"),
		authorBase:   baseOr(site.AuthorBase, "author"),
		archiveTypes: archives,
		staticFront:  site.ShowOnFront == configtypes.ShowOnFrontPage,
		postsPageURL: site.PageForPostsURL,
	}
}

func baseOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func (l *PermalinkLinks) CategoryLink(term types.Term) string {
	if term.Link != "" {
		return term.Link
	}
	if term.Slug == "" {
		return l.home + "?cat=" + strconv.FormatInt(term.ID, 10)
	}
	return urlutil.JoinPath(l.home, l.categoryBase, term.Slug)
}

func (l *PermalinkLinks) TagLink(term types.Term) string {
	if term.Link != "" {
		return term.Link
	}
	if term.Slug == "" {
		return l.home + "?tag_id=" + strconv.FormatInt(term.ID, 10)
	}
	return urlutil.JoinPath(l.home, l.tagBase, term.Slug)
}

func (l *PermalinkLinks) AuthorPostsLink(author types.Author) string {
	if author.Link != "" {
		return author.Link
	}
	if author.Nicename == "" {
		return l.home + "?author=" + strconv.FormatInt(author.ID, 10)
	}
	return urlutil.JoinPath(l.home, l.authorBase, author.Nicename)
}

func (l *PermalinkLinks) AuthorFeedLink(author types.Author) string {
	if author.FeedLink != "" {
		return author.FeedLink
	}
	posts := l.AuthorPostsLink(author)
	if strings.Contains(posts, "?") {
		return posts + "&feed=rss2"
	}
	return urlutil.JoinPath(posts, "feed")
}

func (l *PermalinkLinks) PostTypeArchiveLink(postType string) (string, bool) {
	if !l.archiveTypes[postType] {
		return "", false
	}
	return urlutil.JoinPath(l.home, postType), true
}

func (l *PermalinkLinks) PostTypeArchiveFeedLink(postType string) string {
	return urlutil.JoinPath(l.home, postType, "feed")
}

func (l *PermalinkLinks) Permalink(content types.ChangedContent) string {
	if content.Permalink != "" {
		return content.Permalink
	}
	return l.home + "?p=" + strconv.FormatInt(content.ID, 10)
}

func (l *PermalinkLinks) SiteFeeds() []string {
	return []string{
		urlutil.JoinPath(l.home, "feed", "rdf"),
		urlutil.JoinPath(l.home, "feed", "rss"),
		urlutil.JoinPath(l.home, "feed"),
		urlutil.JoinPath(l.home, "feed", "atom"),
		urlutil.JoinPath(l.home, "comments", "feed"),
	}
}

func (l *PermalinkLinks) CommentsFeedLink(content types.ChangedContent) string {
	permalink := l.Permalink(content)
	if strings.Contains(permalink, "?") {
		return permalink + "&feed=rss2"
	}
	return urlutil.JoinPath(permalink, "feed")
}

func (l *PermalinkLinks) HomeURL() string {
	return l.home
}

func (l *PermalinkLinks) PostsPageLink() (string, bool) {
	if !l.staticFront || l.postsPageURL == "" {
		return "", false
	}
	return l.postsPageURL, true
}
