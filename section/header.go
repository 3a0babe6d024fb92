package section

import (
	"fmt"

	"github.com/arloliu/op2/encoding"
	"github.com/arloliu/op2/endian"
	"github.com/arloliu/op2/errs"
	"github.com/arloliu/op2/format"
)

// Header is the 128-byte record that identifies a table.
//
// The header carries everything a codec needs to interpret the data frames that
// follow: the category (table code, element type, statistic), the subcase, the
// physical layout (sort code, num_wide, counts), and the declared precision.
type Header struct {
	// ApproachCode is analysis code × 10 + device code.
	ApproachCode int32 // word 0
	// TableCode identifies the result category.
	TableCode int32 // word 1
	// ElementType distinguishes element families within a category, 0 for node tables.
	ElementType int32 // word 2
	// Subcase is the load case id.
	Subcase int32 // word 3
	// SortCode packs the sort order and the complex/random flags.
	SortCode SortCode // word 4
	// Format declares how quantities are stored.
	Format format.ValueFormat // word 5
	// NumWide is the number of words per row, including the leading key word.
	NumWide int32 // word 6
	// WordSize is the word width declared by the table (4 or 8).
	WordSize int32 // word 7
	// Version is the table layout version.
	Version int32 // word 8
	// FunctionID is the random-analysis auxiliary key, 0 otherwise.
	FunctionID int32 // word 9
	// StepCount is the number of steps (time, frequency, mode...) in the table.
	StepCount int32 // word 10
	// EntityCount is the number of entities (nodes, elements...) in the table.
	EntityCount int32 // word 11
	// StepKind declares what the step values measure.
	StepKind format.StepKind // word 12
	// Statistic identifies random-analysis aggregates.
	Statistic format.Statistic // word 13
	// Aux0 and Aux1 are category specific (matrix row count and form).
	Aux0 int32 // word 14
	Aux1 int32 // word 15
	// Title is the raw 64-byte title, including padding.
	Title string
}

// AnalysisCode returns the analysis part of the approach code.
func (h Header) AnalysisCode() int32 {
	return h.ApproachCode / 10
}

// DeviceCode returns the device part of the approach code.
func (h Header) DeviceCode() int32 {
	return h.ApproachCode % 10
}

// Precision returns the precision declared by the table.
func (h Header) Precision() (format.Precision, error) {
	return format.PrecisionFromWordSize(int(h.WordSize))
}

// Parse parses the header from a record payload.
//
// Parameters:
//   - data: header payload (must be exactly 128 bytes)
//   - engine: archive byte order
//
// Returns:
//   - error: ErrInvalidHeaderSize if data is not 128 bytes, ErrInvalidHeaderFlags
//     if a code is out of range or the flags contradict each other
func (h *Header) Parse(data []byte, engine endian.EndianEngine) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("%w: %d bytes, want %d", errs.ErrInvalidHeaderSize, len(data), HeaderSize)
	}

	cur := encoding.NewCursor(data, engine, format.PrecisionSingle)
	var w [HeaderWords]int32
	for i := range w {
		v, err := cur.Int32()
		if err != nil {
			return fmt.Errorf("%w: %w", errs.ErrInvalidHeaderSize, err)
		}
		w[i] = v
	}
	title, err := cur.FixedString(TitleSize)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalidHeaderSize, err)
	}

	if w[wordFormatCode] < 0 || w[wordFormatCode] > 0xff ||
		w[wordStepKind] < 0 || w[wordStepKind] > 0xff ||
		w[wordStatistic] < 0 || w[wordStatistic] > 0xff {
		return fmt.Errorf("%w: format %d, step kind %d, statistic %d",
			errs.ErrInvalidHeaderFlags, w[wordFormatCode], w[wordStepKind], w[wordStatistic])
	}

	h.ApproachCode = w[wordApproach]
	h.TableCode = w[wordTableCode]
	h.ElementType = w[wordElementType]
	h.Subcase = w[wordSubcase]
	h.SortCode = SortCode(w[wordSortCode])
	h.Format = format.ValueFormat(w[wordFormatCode])
	h.NumWide = w[wordNumWide]
	h.WordSize = w[wordWordSize]
	h.Version = w[wordVersion]
	h.FunctionID = w[wordFunctionID]
	h.StepCount = w[wordStepCount]
	h.EntityCount = w[wordEntityCount]
	h.StepKind = format.StepKind(w[wordStepKind])
	h.Statistic = format.Statistic(w[wordStatistic])
	h.Aux0 = w[wordAux0]
	h.Aux1 = w[wordAux1]
	h.Title = title

	return h.Validate()
}

// Validate checks the header codes for range errors and contradictions.
func (h Header) Validate() error {
	switch {
	case !h.SortCode.IsValid():
		return fmt.Errorf("%w: sort code %#x has reserved bits", errs.ErrInvalidHeaderFlags, int32(h.SortCode))
	case !h.Format.IsValid():
		return fmt.Errorf("%w: format code %d", errs.ErrInvalidHeaderFlags, h.Format)
	case h.SortCode.IsComplex() != h.Format.IsComplex():
		return fmt.Errorf("%w: sort code %#x contradicts format %s", errs.ErrInvalidHeaderFlags, int32(h.SortCode), h.Format)
	case !h.StepKind.IsValid():
		return fmt.Errorf("%w: step kind %d", errs.ErrInvalidHeaderFlags, h.StepKind)
	case !h.Statistic.IsValid():
		return fmt.Errorf("%w: statistic %d", errs.ErrInvalidHeaderFlags, h.Statistic)
	case h.SortCode.IsRandom() != (h.Statistic != format.StatNone):
		return fmt.Errorf("%w: random bit contradicts statistic %s", errs.ErrInvalidHeaderFlags, h.Statistic)
	case h.NumWide < 1:
		return fmt.Errorf("%w: num_wide %d", errs.ErrInvalidHeaderFlags, h.NumWide)
	case h.StepCount < 0 || h.EntityCount < 0:
		return fmt.Errorf("%w: negative counts (steps %d, entities %d)", errs.ErrInvalidHeaderFlags, h.StepCount, h.EntityCount)
	case h.ApproachCode < 0:
		return fmt.Errorf("%w: approach code %d", errs.ErrInvalidHeaderFlags, h.ApproachCode)
	}

	return nil
}

// Bytes serializes the header into a 128-byte payload.
func (h Header) Bytes(engine endian.EndianEngine) []byte {
	return h.AppendBytes(make([]byte, 0, HeaderSize), engine)
}

// AppendBytes appends the 128-byte header payload to dst.
func (h Header) AppendBytes(dst []byte, engine endian.EndianEngine) []byte {
	for _, w := range h.words() {
		dst = engine.AppendUint32(dst, uint32(w)) //nolint:gosec // two's complement reinterpretation
	}

	return append(dst, PadTitle(h.Title)...)
}

// AppendFrame appends the header as one framed record.
func (h Header) AppendFrame(a *encoding.Appender) error {
	a.BeginFrame()
	for _, w := range h.words() {
		a.Int32(w)
	}
	a.FixedString(h.Title, TitleSize)

	return a.EndFrame()
}

func (h Header) words() [HeaderWords]int32 {
	return [HeaderWords]int32{
		wordApproach:    h.ApproachCode,
		wordTableCode:   h.TableCode,
		wordElementType: h.ElementType,
		wordSubcase:     h.Subcase,
		wordSortCode:    int32(h.SortCode),
		wordFormatCode:  int32(h.Format),
		wordNumWide:     h.NumWide,
		wordWordSize:    h.WordSize,
		wordVersion:     h.Version,
		wordFunctionID:  h.FunctionID,
		wordStepCount:   h.StepCount,
		wordEntityCount: h.EntityCount,
		wordStepKind:    int32(h.StepKind),
		wordStatistic:   int32(h.Statistic),
		wordAux0:        h.Aux0,
		wordAux1:        h.Aux1,
	}
}

// ParseHeader parses a Header from a record payload.
func ParseHeader(data []byte, engine endian.EndianEngine) (Header, error) {
	var h Header
	err := h.Parse(data, engine)

	return h, err
}
