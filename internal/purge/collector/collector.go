// Package collector lists the URLs whose cached copies go stale when a piece
// of content changes.
package collector

import (
	"github.com/edgecomet/cfpurge/pkg/types"
)

// Collector builds the selective purge list for a content item.
type Collector struct {
	links Links
}

func New(links Links) *Collector {
	return &Collector{links: links}
}

// Collect returns the affected URLs in a fixed order: category archives, tag
// archives, author page and feed, post type archive and feed, the permalink,
// the site feeds, the item's comment feed, the home page and finally the
// posts page. The list may contain duplicates and is not normalised.
func (c *Collector) Collect(content types.ChangedContent) []string {
	urls := make([]string, 0, 12+len(content.Categories)+len(content.Tags))

	for _, cat := range content.Categories {
		urls = append(urls, c.links.CategoryLink(cat))
	}
	for _, tag := range content.Tags {
		urls = append(urls, c.links.TagLink(tag))
	}

	if content.Author != nil {
		urls = append(urls,
			c.links.AuthorPostsLink(*content.Author),
			c.links.AuthorFeedLink(*content.Author),
		)
	}

	if archive, ok := c.links.PostTypeArchiveLink(content.Type); ok {
		urls = append(urls, archive, c.links.PostTypeArchiveFeedLink(content.Type))
	}

	urls = append(urls, c.links.Permalink(content))
	urls = append(urls, c.links.SiteFeeds()...)
	urls = append(urls, c.links.CommentsFeedLink(content))
	urls = append(urls, c.links.HomeURL())

	if postsPage, ok := c.links.PostsPageLink(); ok {
		urls = append(urls, postsPage)
	}

	return urls
}
