package resolution

import (
	"context"
	"net/http"

	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/wordpress"

	"github.com/rs/zerolog/log"
)

// Finder is the part of the WordPress client the resolver calls.
type Finder interface {
	FindBySlug(ctx context.Context, acct model.Account, collection, slug string) ([]wordpress.EntityRef, error)
	GetSettings(ctx context.Context, acct model.Account) (*wordpress.Settings, error)
}

// Entity is a resolved target. It lives only for the row being processed.
type Entity struct {
	ID      int
	Type    model.ContentType
	Account model.Account
}

// Resolver maps URLs to entity IDs. Nothing is cached: the same URL on two
// rows is looked up twice.
type Resolver struct {
	api Finder
}

func NewResolver(api Finder) *Resolver {
	return &Resolver{api: api}
}

// Resolve finds the entity a URL denotes. ContentAuto tries post, then page.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, contentType model.ContentType, acct model.Account) (Entity, bool) {
	if contentType == model.ContentAuto {
		for _, t := range []model.ContentType{model.ContentPost, model.ContentPage} {
			if entity, ok := r.resolveTyped(ctx, rawURL, t, acct); ok {
				return entity, true
			}
		}
		return Entity{}, false
	}
	return r.resolveTyped(ctx, rawURL, contentType, acct)
}

func (r *Resolver) resolveTyped(ctx context.Context, rawURL string, contentType model.ContentType, acct model.Account) (Entity, bool) {
	if !contentType.Supported() {
		log.Debug().Str("type", string(contentType)).Str("url", rawURL).Msg("Unsupported content type")
		return Entity{}, false
	}

	if contentType == model.ContentPost || contentType == model.ContentPage {
		if IsHomepage(rawURL) {
			if id := r.frontPageID(ctx, acct); id > 0 {
				log.Debug().Str("url", rawURL).Int("id", id).Msg("Resolved homepage to static front page")
				// the front page is always a page, whatever the row says
				return Entity{ID: id, Type: model.ContentPage, Account: acct}, true
			}
		}
	}

	slug := SlugFromURL(rawURL)
	if slug == "" {
		// an empty slug filter is ignored by WordPress and would match an arbitrary entity
		log.Debug().Str("url", rawURL).Msg("No slug in URL")
		return Entity{}, false
	}

	collection := contentType.Collection()
	refs, err := r.api.FindBySlug(ctx, acct, collection, slug)
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Str("slug", slug).Str("collection", collection).Msg("Slug lookup failed")
		return Entity{}, false
	}
	if len(refs) == 0 || refs[0].ID <= 0 {
		log.Debug().Str("slug", slug).Str("collection", collection).Msg("No entity with slug")
		return Entity{}, false
	}

	log.Debug().
		Str("slug", slug).
		Str("collection", collection).
		Int("id", refs[0].ID).
		Msg("Resolved entity by slug")
	return Entity{ID: refs[0].ID, Type: contentType, Account: acct}, true
}

func (r *Resolver) frontPageID(ctx context.Context, acct model.Account) int {
	settings, err := r.api.GetSettings(ctx, acct)
	if err != nil {
		// /settings needs manage_options; editor accounts get 401 or 403 here.
		if wordpress.IsStatus(err, http.StatusUnauthorized) || wordpress.IsStatus(err, http.StatusForbidden) {
			log.Warn().Err(err).Str("site", acct.Site).Msg("Account cannot read the front page setting; homepage rows fall back to slug lookup")
			return 0
		}
		log.Debug().Err(err).Str("site", acct.Site).Msg("Failed to read front page setting; falling back to slug lookup")
		return 0
	}
	return int(settings.PageOnFront)
}
