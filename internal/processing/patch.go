package processing

import (
	"context"
	"fmt"

	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/resolution"
	"wp_schema_sync/internal/schema"
	"wp_schema_sync/internal/wordpress"

	"github.com/rs/zerolog/log"
)

// Meta keys holding the schema script.
const (
	PostScriptGroupKey = "_inpost_head_script"
	PostScriptKey      = "synth_header_script"
	CategorySchemaKey  = "category_schema"
)

// EntityAPI is the part of the WordPress client the patcher calls.
type EntityAPI interface {
	GetEntity(ctx context.Context, acct model.Account, collection string, id int) (*wordpress.Entity, error)
	Patch(ctx context.Context, acct model.Account, collection string, id int, payload any) error
}

// PatchResult describes a successful write. The line counts compare the old
// and new value; in delete mode the old post/page value is not read, so both
// stay zero while Changed is true.
type PatchResult struct {
	Old          string
	New          string
	Changed      bool
	AddedLines   int
	RemovedLines int
}

// Patcher performs the read-merge-write of the schema field. It never retries.
type Patcher struct {
	api EntityAPI
}

func NewPatcher(api EntityAPI) *Patcher {
	return &Patcher{api: api}
}

// Apply writes the merged (or, in delete mode, cleared) schema to the entity.
func (p *Patcher) Apply(ctx context.Context, entity resolution.Entity, fragment string, deleteMode bool) (PatchResult, error) {
	switch entity.Type {
	case model.ContentPost, model.ContentPage:
		return p.applyPostMeta(ctx, entity, fragment, deleteMode)
	case model.ContentCategory:
		return p.applyCategory(ctx, entity, fragment, deleteMode)
	default:
		return PatchResult{}, fmt.Errorf("unsupported content type %q", entity.Type)
	}
}

// applyPostMeta sends only the nested script key so other meta stays untouched.
func (p *Patcher) applyPostMeta(ctx context.Context, entity resolution.Entity, fragment string, deleteMode bool) (PatchResult, error) {
	collection := entity.Type.Collection()

	var old string
	if !deleteMode {
		current, err := p.api.GetEntity(ctx, entity.Account, collection, entity.ID)
		if err != nil {
			return PatchResult{}, fmt.Errorf("read current schema: %w", err)
		}
		old = current.Meta.Object(PostScriptGroupKey).String(PostScriptKey)
	}

	merged := schema.Merge(old, fragment, deleteMode)
	payload := map[string]any{
		"meta": map[string]any{
			PostScriptGroupKey: map[string]any{
				PostScriptKey: merged,
			},
		},
	}
	if err := p.api.Patch(ctx, entity.Account, collection, entity.ID, payload); err != nil {
		return PatchResult{}, err
	}

	// deletes skip the read, so the previous value is unknown
	return newPatchResult(old, merged, !deleteMode), nil
}

// categoryUpdate lists the fields a category PATCH echoes back. A meta-only
// PATCH to /categories blanks the description on some WordPress versions, so
// the writable fields are re-sent with their current values. Read-only fields
// (count, link, taxonomy, _links) are never sent.
type categoryUpdate struct {
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description"`
	Parent      int            `json:"parent"`
	Meta        wordpress.Meta `json:"meta"`
}

func (p *Patcher) applyCategory(ctx context.Context, entity resolution.Entity, fragment string, deleteMode bool) (PatchResult, error) {
	collection := entity.Type.Collection()

	current, err := p.api.GetEntity(ctx, entity.Account, collection, entity.ID)
	if err != nil {
		return PatchResult{}, fmt.Errorf("read current category: %w", err)
	}

	old := current.Meta.String(CategorySchemaKey)
	merged := schema.Merge(old, fragment, deleteMode)

	encoded, err := wordpress.EncodeJSON(merged)
	if err != nil {
		return PatchResult{}, fmt.Errorf("encode category schema: %w", err)
	}
	meta := make(wordpress.Meta, len(current.Meta)+1)
	for k, v := range current.Meta {
		meta[k] = v
	}
	meta[CategorySchemaKey] = encoded

	update := categoryUpdate{
		Name:        current.Name,
		Slug:        current.Slug,
		Description: current.Description,
		Parent:      current.Parent,
		Meta:        meta,
	}
	if err := p.api.Patch(ctx, entity.Account, collection, entity.ID, update); err != nil {
		return PatchResult{}, err
	}

	return newPatchResult(old, merged, true), nil
}

func newPatchResult(old, merged string, oldKnown bool) PatchResult {
	change := schema.Summarize(old, merged)
	result := PatchResult{
		Old:          old,
		New:          merged,
		Changed:      !change.Unchanged() || !oldKnown,
		AddedLines:   change.AddedLines,
		RemovedLines: change.RemovedLines,
	}
	log.Debug().
		Bool("changed", result.Changed).
		Int("added_lines", change.AddedLines).
		Int("removed_lines", change.RemovedLines).
		Msg("Schema merge")
	return result
}
