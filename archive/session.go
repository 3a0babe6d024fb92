// Package archive reads and writes result archives.
//
// A Reader consumes the preamble, then dispatches each table to the codec
// registered for its category. Tables that cannot be decoded are skipped by
// frame length and reported in the Summary; only framing errors end a read
// early. A Writer emits the tables of a store so that an archive read into a
// store and written back is reproduced byte for byte.
//
// Example:
//
//	st, _ := store.New()
//	defer st.Close()
//	sum, err := archive.ReadFile(ctx, "model.op2", st)
//	if err != nil {
//	    return err
//	}
//	for _, d := range sum.Diagnostics {
//	    log.Printf("skipped %s at %d: %v", d.Name, d.Offset, d.Err)
//	}
package archive

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/observability"
	"github.com/arloliu/op2/result"
	"github.com/arloliu/op2/section"
	"github.com/arloliu/op2/table"
)

// Session is the state shared by the stages of one read: the archive encoding,
// the codec registry, the logger and metrics, and the summary being built.
// It is owned by a single Reader.
type Session struct {
	Wire     table.Wire
	Preamble section.Preamble
	Registry *table.Registry
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	summary Summary
}

// Summary returns a copy of the session summary so far.
func (s *Session) Summary() Summary {
	sum := s.summary
	sum.Tables = append([]TableInfo(nil), s.summary.Tables...)
	sum.Diagnostics = append([]Diagnostic(nil), s.summary.Diagnostics...)

	return sum
}

// Reason classifies why a table was skipped.
type Reason uint8

const (
	ReasonUnrecognized Reason = iota + 1
	ReasonMalformed
	ReasonPrecision
	ReasonHeader
	ReasonMerge
)

func (r Reason) String() string {
	switch r {
	case ReasonUnrecognized:
		return "unrecognized"
	case ReasonMalformed:
		return "malformed"
	case ReasonPrecision:
		return "precision"
	case ReasonHeader:
		return "header"
	case ReasonMerge:
		return "merge"
	default:
		return "unknown"
	}
}

func reasonOf(err error) Reason {
	switch {
	case errors.Is(err, errs.ErrUnrecognizedTable):
		return ReasonUnrecognized
	case errors.Is(err, errs.ErrPrecisionMismatch):
		return ReasonPrecision
	case errors.Is(err, errs.ErrInvalidHeaderSize), errors.Is(err, errs.ErrInvalidHeaderFlags):
		return ReasonHeader
	case errors.Is(err, errs.ErrInconsistentMerge):
		return ReasonMerge
	default:
		return ReasonMalformed
	}
}

// Diagnostic describes a table that was not stored.
type Diagnostic struct {
	// Name is the table name with padding removed.
	Name   string
	Offset int64
	Reason Reason
	Err    error
}

// TableInfo describes a decoded table.
type TableInfo struct {
	Name     string
	Label    string
	Key      result.Key
	Kind     format.Kind
	Offset   int64
	Entities int
	Steps    int
	Bytes    int64
}

// Summary reports the outcome of a read.
type Summary struct {
	ByteOrder string
	Precision format.Precision
	Version   int32
	Label     string
	// Terminated is true when the archive ended with the end-of-archive sentinel.
	Terminated  bool
	Bytes       int64
	Tables      []TableInfo
	Diagnostics []Diagnostic
}

// Skipped returns the number of skipped tables.
func (s Summary) Skipped() int {
	return len(s.Diagnostics)
}

func newSummary(wire table.Wire, p section.Preamble) Summary {
	return Summary{
		ByteOrder: endian.Name(wire.Engine),
		Precision: wire.Precision,
		Version:   p.Version,
		Label:     strings.TrimRight(p.Label, " "),
	}
}
