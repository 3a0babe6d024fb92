package store

import (
	"fmt"
	"math"
	"slices"

	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/internal/entityset"
	"github.com/arloliu/op2/result"
)

// checkCompatible verifies that incoming can extend existing.
func checkCompatible(existing, incoming *result.Table) error {
	em, im := existing.Meta, incoming.Meta

	switch {
	case existing.Layout != incoming.Layout && existing.Layout.Name != incoming.Layout.Name:
		return fmt.Errorf("%w: %s layout %s, incoming %s",
			errs.ErrInconsistentMerge, existing.Key, existing.Layout.Name, incoming.Layout.Name)
	case !slices.Equal(existing.Columns, incoming.Columns):
		return fmt.Errorf("%w: %s column layout differs", errs.ErrInconsistentMerge, existing.Key)
	case em.Format != im.Format:
		return fmt.Errorf("%w: %s format %s, incoming %s", errs.ErrInconsistentMerge, existing.Key, em.Format, im.Format)
	case em.Precision != im.Precision:
		return fmt.Errorf("%w: %s precision %s, incoming %s", errs.ErrInconsistentMerge, existing.Key, em.Precision, im.Precision)
	case em.Device != im.Device || em.Analysis != im.Analysis:
		return fmt.Errorf("%w: %s approach code %d, incoming %d",
			errs.ErrInconsistentMerge, existing.Key, em.ApproachCode(), im.ApproachCode())
	case em.StepKind != im.StepKind:
		return fmt.Errorf("%w: %s step kind %s, incoming %s", errs.ErrInconsistentMerge, existing.Key, em.StepKind, im.StepKind)
	case em.StepKind == format.StepNone:
		return fmt.Errorf("%w: %s is static and already stored", errs.ErrInconsistentMerge, existing.Key)
	}

	if n := len(existing.Steps); n > 0 {
		last := existing.Steps[n-1]
		for _, s := range incoming.Steps {
			if !(s > last) {
				return fmt.Errorf("%w: %s step %v does not follow stored step %v",
					errs.ErrInconsistentMerge, existing.Key, s, last)
			}
		}
	}

	return nil
}

// checkMerge verifies that incoming can follow tail, the latest table merged
// under the key. Every entity of tail must reappear in incoming.
func checkMerge(tail, incoming *result.Table) error {
	if err := checkCompatible(tail, incoming); err != nil {
		return err
	}

	have, err := entityset.FromIDs(tail.Entities)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInconsistentMerge, err)
	}
	got, err := entityset.FromIDs(incoming.Entities)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInconsistentMerge, err)
	}
	if missing := have.MissingFrom(got); len(missing) > 0 {
		return fmt.Errorf("%w: %s incoming table lacks %d stored entities (first %d)",
			errs.ErrInconsistentMerge, tail.Key, len(missing), missing[0])
	}

	return nil
}

// coalesce returns one table holding the steps of base followed by the steps
// of each part, which checkMerge has accepted in order. No input is modified.
//
// Entities first seen in a part are appended after the known ones. Their rows
// for earlier steps are NaN, except integer columns which are 0 so the table
// stays encodable.
func coalesce(base *result.Table, parts []*result.Table) *result.Table {
	known, _ := entityset.FromIDs(base.Entities)
	entities := slices.Clone(base.Entities)
	steps := slices.Clone(base.Steps)
	for _, p := range parts {
		for _, id := range p.Entities {
			if known.Add(id) == nil {
				entities = append(entities, id)
			}
		}
		steps = append(steps, p.Steps...)
	}

	stride := base.Stride()
	total := len(steps)
	merged := &result.Table{
		Key:      base.Key,
		Meta:     base.Meta,
		Layout:   base.Layout,
		Columns:  slices.Clone(base.Columns),
		Entities: entities,
		Steps:    steps,
		Data:     make([]float64, len(entities)*total*stride),
	}

	fill := make([]float64, stride)
	for c, col := range base.Columns {
		if col.Kind != format.FieldInt {
			fill[c] = math.NaN()
		}
	}
	for e := range entities {
		row := merged.Data[e*total*stride : (e+1)*total*stride]
		for s := range total {
			copy(row[s*stride:], fill)
		}
	}

	// Each source is copied exactly once, so building a table from n parts is
	// linear in its final size.
	place := func(src *result.Table, start int) {
		n := len(src.Steps) * stride
		for i, id := range src.Entities {
			e, _ := known.Index(id)
			copy(merged.Data[(e*total+start)*stride:], src.Data[i*n:(i+1)*n])
		}
	}
	place(base, 0)
	start := len(base.Steps)

	merged.Segments = make([]result.Segment, 0, len(base.Segments)+len(parts))
	for _, seg := range base.Segments {
		seg.Entities = slices.Clone(seg.Entities)
		merged.Segments = append(merged.Segments, seg)
	}
	for _, p := range parts {
		place(p, start)
		for _, seg := range p.Segments {
			seg.Entities = slices.Clone(seg.Entities)
			seg.StepStart += start
			merged.Segments = append(merged.Segments, seg)
		}
		start += len(p.Steps)
	}

	return merged
}
