// internal/profile/selectors.go
package profile

import (
	"strings"
	"unicode"

	"github.com/xkilldash9x/sweeper-cli/internal/dom"
	"github.com/xkilldash9x/sweeper-cli/internal/engine"
)

// Page health, shared by every target.
var (
	errorIndicators = dom.Chain{
		dom.ByXPath("//*[contains(text(), 'Error with your network')]"),
		dom.ByXPath("//*[contains(text(), 'Something went wrong')]"),
		dom.ByXPath("//*[contains(text(), 'Please try again')]"),
		dom.ByXPath("//*[contains(text(), 'Network error')]"),
		dom.ByXPath("//*[contains(text(), 'Connection error')]"),
		dom.ByXPath("//*[contains(text(), 'There was an issue')]"),
		dom.ByCSS(".feed-shared-error-message"),
	}

	contentIndicators = dom.Chain{
		dom.ByCSS(".feed-shared-update-v2"),
		dom.ByCSS(".feed-shared-update"),
		dom.ByCSS(".comments-comments-list__comment-item"),
		dom.ByCSS(".comments-comment-item"),
		dom.ByCSS("[data-test-id*='post']"),
		dom.ByCSS("[data-test-id*='comment']"),
	}

	// activityLinks lead from a profile page to its recent activity.
	activityLinks = dom.Chain{
		dom.ByCSS("a[href*='recent-activity']"),
		dom.ByCSS("a[href*='activity']"),
		dom.ByXPath("//a[contains(text(), 'Activity')]"),
		dom.ByXPath("//a[contains(text(), 'Recent Activity')]"),
	}

	menuContainers = dom.Chain{
		dom.ByCSS(".feed-shared-control-menu__content"),
		dom.ByCSS(".artdeco-dropdown__content"),
		dom.ByCSS("[role='menu']"),
	}
)

// Posts.
var (
	postItems = dom.Chain{
		dom.ByCSS(".feed-shared-update-v2"),
		dom.ByCSS("[data-test-id*='post']"),
		dom.ByCSS(".feed-shared-update"),
		dom.ByCSS(".occludable-update"),
	}

	postMenuTriggers = dom.Chain{
		dom.ByCSS("button[aria-label*='More actions']"),
		dom.ByCSS("button[aria-label*='More']"),
		dom.ByCSS("button[data-test-id*='more']"),
		dom.ByCSS(".feed-shared-control-menu__trigger"),
		dom.ByCSS("button[class*='control-menu']"),
		dom.ByCSS(".feed-shared-control-menu button"),
	}

	postDeleteEntries = dom.Chain{
		dom.ByCSS(".option-delete .feed-shared-control-menu__headline"),
		dom.ByXPath("//button[contains(text(), 'Delete') or contains(text(), 'Delete post') or contains(text(), 'Delete repost')]"),
	}

	postMenuEntries = dom.Chain{
		dom.ByCSS(".feed-shared-control-menu__content .feed-shared-control-menu__item"),
		dom.ByCSS(".artdeco-dropdown__content .artdeco-dropdown__item"),
		dom.ByCSS("[role='menu'] [role='menuitem']"),
	}

	// Dialog-scoped buttons come before the page-wide fallbacks.
	postConfirmButtons = dom.Chain{
		dom.ByCSS("button.feed-components-shared-decision-modal__confirm-button.artdeco-button.artdeco-button--primary.artdeco-button--2"),
		dom.ByXPath("//div[@role='dialog']//button[contains(@class, 'artdeco-button--primary') and (contains(., 'Delete') or contains(., 'Confirm') or contains(., 'Yes'))]"),
		dom.ByXPath("//div[@role='dialog']//button[contains(text(), 'Delete')]"),
		dom.ByXPath("//div[contains(@class, 'modal')]//button[contains(text(), 'Delete')]"),
		dom.ByXPath("//button[contains(@class, 'artdeco-button--primary')]"),
		dom.ByXPath("//button[contains(text(), 'Delete')]"),
		dom.ByXPath("//button[contains(text(), 'Confirm')]"),
		dom.ByXPath("//button[contains(text(), 'Yes')]"),
		dom.ByXPath("//button[contains(@class, 'confirm')]"),
	}

	repostClassifier = engine.PhraseClassifier{
		Rules: []engine.PhraseRule{
			{Variant: engine.VariantRepostOfRepost, Phrases: []string{
				"reposted with thoughts",
				"shared with thoughts",
				"reposted and added",
				"shared and added",
				"reposted with comment",
				"shared with comment",
			}},
			{Variant: engine.VariantSimpleRepost, Phrases: []string{
				"reposted this",
				"shared this",
			}},
			{Variant: engine.VariantRepostWithThoughts, Phrases: []string{
				"reposted with my thoughts",
				"shared with my thoughts",
				"reposted and added my thoughts",
				"shared and added my thoughts",
			}},
		},
		Markers: dom.Chain{
			dom.ByCSS("[data-test-id*='repost'], [data-test-id*='share'], .feed-shared-actor-meta"),
		},
	}

	// Menu position of the delete entry for each post variant.
	deletePositions = map[engine.Variant]int{
		engine.VariantRepostOfRepost:     3,
		engine.VariantSimpleRepost:       4,
		engine.VariantRepostWithThoughts: 5,
		engine.VariantRegular:            6,
	}

	destructiveLabels = []string{"delete", "undo repost", "remove"}
)

// Comments.
var (
	commentItems = dom.Chain{
		dom.ByCSS("li.comments-comments-list__comment-item"),
		dom.ByCSS("article.comments-comment-item"),
		dom.ByCSS("div.comments-comment-item"),
		dom.ByCSS("div.update-components-comment"),
		dom.ByCSS("[data-test-id*='comment']"),
		dom.ByCSS("[data-id*='comment']"),
	}

	commentMenuTriggers = dom.Chain{
		dom.ByCSS("button[aria-label*='Open options'][aria-label*='comment']"),
		dom.ByCSS("button[aria-label*='options'][aria-label*='comment']"),
		dom.ByXPath(".//button[contains(@aria-label, 'options') and contains(@aria-label, 'comment')]"),
		dom.ByXPath(".//button[.//svg[@data-test-icon='overflow-web-ios-small']]"),
	}

	commentDeleteEntries = dom.Chain{
		dom.ByCSS(".artdeco-dropdown__content button[data-control-name='delete_comment']"),
		dom.ByCSS(".artdeco-dropdown__content button[data-control-name='delete']"),
		dom.ByCSS("[role='menu'] button[data-control-name='delete_comment']"),
		dom.ByCSS("[role='menu'] button[data-control-name='delete']"),
		dom.ByXPath("//div[@class='artdeco-dropdown__content']//button[contains(., 'Delete')]"),
		dom.ByXPath("//div[@role='menu']//button[contains(., 'Delete')]"),
		dom.ByXPath("//button[contains(., 'Delete comment')]"),
		dom.ByXPath("//button[contains(., 'Delete')]"),
		dom.ByXPath("//button[contains(@aria-label, 'Delete')]"),
		dom.ByXPath("//*[contains(., 'Delete') and (self::button or self::a or self::div[@role='button'])]"),
	}

	commentConfirmButtons = dom.Chain{
		dom.ByCSS("button.feed-components-shared-decision-modal__confirm-button.artdeco-button.artdeco-button--primary.artdeco-button--2"),
		dom.ByXPath("//div[@role='dialog']//button[contains(@class, 'artdeco-button--primary') and (contains(., 'Delete') or contains(., 'Confirm') or contains(., 'Yes'))]"),
	}
)

// Reactions.
var (
	likedPostToggles = dom.Chain{
		dom.ByCSS(".react-button__trigger.artdeco-button[aria-pressed='true']"),
		dom.ByCSS("button[data-control-name='like_toggle'][aria-pressed='true']"),
		dom.ByCSS(".feed-shared-social-action-bar__action-button[aria-pressed='true']"),
	}

	likedCommentToggles = dom.Chain{
		dom.ByCSS(".comments-comment-social-bar__like-action-button[aria-pressed='true']"),
		dom.ByCSS(".comment-social-bar__like-button[aria-pressed='true']"),
		dom.ByCSS("button[data-control-name='comment_like_toggle'][aria-pressed='true']"),
	}

	reactionExpanders = []engine.Expander{
		{
			Name:  "previous_comments",
			Chain: dom.Chain{dom.ByCSS(".button.comments-comments-list__show-previous-button")},
		},
		{
			Name:  "previous_replies",
			Chain: dom.Chain{dom.ByCSS("button.show-prev-replies")},
		},
		{
			Name: "comment_sections",
			Chain: dom.Chain{
				dom.ByCSS("button[data-control-name='comment_count']"),
				dom.ByCSS(".social-counts-comments__count"),
				dom.ByCSS(".social-counts__item--comments button"),
				dom.ByCSS(".feed-shared-social-action-bar__action-button[data-control-name='comment_count']"),
				dom.ByXPath("//button[contains(., 'comment') and contains(., 'Show')]"),
				dom.ByXPath("//a[contains(., 'comment') and contains(text(), 'Show')]"),
			},
			Accept: isCommentCount,
		},
	}
)

// isCommentCount accepts labels such as "12 comments" or "Show 3 replies".
func isCommentCount(text string) bool {
	text = strings.ToLower(text)
	if strings.IndexFunc(text, unicode.IsDigit) < 0 {
		return false
	}
	for _, kw := range []string{"comment", "show", "reply"} {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
