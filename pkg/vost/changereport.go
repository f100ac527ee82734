package vost

import (
	"encoding/json"
	"sort"

	"github.com/mhalle/vost/pkg/object"
)

// ChangeAction is one path touched by a copy/sync operation.
type ChangeAction struct {
	Path   string
	Type   object.FileType
	Source string // disk source path, when applicable
}

// ChangeError records a per-path failure that did not abort the batch.
type ChangeError struct {
	Path  string
	Error string
}

// ChangeReport summarizes what a copy or sync operation did.
type ChangeReport struct {
	Added    []ChangeAction
	Updated  []ChangeAction
	Deleted  []ChangeAction
	Errors   []ChangeError
	Warnings []string
}

func NewChangeReport() *ChangeReport { return &ChangeReport{} }

// InSync reports whether nothing changed and nothing failed.
func (r *ChangeReport) InSync() bool {
	return len(r.Added) == 0 && len(r.Updated) == 0 && len(r.Deleted) == 0 && len(r.Errors) == 0
}

// Total is the number of add/update/delete actions.
func (r *ChangeReport) Total() int { return len(r.Added) + len(r.Updated) + len(r.Deleted) }

// Actions returns every add/update/delete action, sorted by path.
func (r *ChangeReport) Actions() []ChangeAction {
	all := make([]ChangeAction, 0, r.Total())
	all = append(all, r.Added...)
	all = append(all, r.Updated...)
	all = append(all, r.Deleted...)
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })
	return all
}

// JSON-shaped projections, for callers that serialize a report.
type changeReportJSON struct {
	Added    []changeActionJSON `json:"added"`
	Updated  []changeActionJSON `json:"updated"`
	Deleted  []changeActionJSON `json:"deleted"`
	Errors   []ChangeError      `json:"errors"`
	Warnings []string           `json:"warnings"`
	InSync   bool               `json:"in_sync"`
	Total    int                `json:"total"`
}

type changeActionJSON struct {
	Path string `json:"path"`
	Type string `json:"file_type"`
	Src  string `json:"src,omitempty"`
}

// MarshalJSON renders the shape callers expect when serializing a report.
func (r *ChangeReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.toJSON())
}

func (r *ChangeReport) toJSON() changeReportJSON {
	conv := func(actions []ChangeAction) []changeActionJSON {
		out := make([]changeActionJSON, len(actions))
		for i, a := range actions {
			out[i] = changeActionJSON{Path: a.Path, Type: a.Type.String(), Src: a.Source}
		}
		return out
	}
	return changeReportJSON{
		Added: conv(r.Added), Updated: conv(r.Updated), Deleted: conv(r.Deleted),
		Errors: r.Errors, Warnings: r.Warnings, InSync: r.InSync(), Total: r.Total(),
	}
}
