package table

import (
	"sync"

	"github.com/arloliu/op2/format"
	"github.com/arloliu/op2/result"
)

// Version is the table layout version of the built-in catalog.
const Version = 1

// Table codes of the built-in result categories.
const (
	CodeDisplacement        int32 = 1
	CodeLoadVector          int32 = 2
	CodeSPCForce            int32 = 3
	CodeStress              int32 = 5
	CodeStrain              int32 = 6
	CodeEigenvector         int32 = 7
	CodeVelocity            int32 = 10
	CodeAcceleration        int32 = 11
	CodeTemperature         int32 = 14
	CodeStrainEnergy        int32 = 18
	CodeMPCForce            int32 = 39
	CodeEigenvalueSummary   int32 = 100
	CodeComplexEigenSummary int32 = 101
	CodeMatrix              int32 = 200
	CodeDesignResponse      int32 = 300
)

// Table codes of the built-in geometry categories.
const (
	CodeGrid   int32 = 4501
	CodeCord2R int32 = 2101
	CodeCord2C int32 = 2001
	CodeRod    int32 = 3001
	CodeQuad4  int32 = 2958
	CodeTria3  int32 = 5959
)

// Element types sharing the stress and strain codes.
const (
	ElemRod   int32 = 1
	ElemQuad4 int32 = 33
	ElemTria3 int32 = 74
)

func ints(names ...string) []result.Field {
	fields := make([]result.Field, len(names))
	for i, n := range names {
		fields[i] = result.Field{Name: n, Kind: format.FieldInt}
	}

	return fields
}

func floats(names ...string) []result.Field {
	fields := make([]result.Field, len(names))
	for i, n := range names {
		fields[i] = result.Field{Name: n, Kind: format.FieldFloat}
	}

	return fields
}

func concat(groups ...[]result.Field) []result.Field {
	var out []result.Field
	for _, g := range groups {
		out = append(out, g...)
	}

	return out
}

// Built-in layouts.
var (
	NodeVectorLayout = &result.Layout{
		Name:         "NodeVector",
		Kind:         format.KindResult,
		Fields:       concat(ints("gridtype"), floats("t1", "t2", "t3", "r1", "r2", "r3")),
		Complexable:  true,
		Complex:      format.ComplexBlock,
		PackedEntity: true,
	}
	TemperatureLayout = &result.Layout{
		Name:         "Temperature",
		Kind:         format.KindResult,
		Fields:       concat(ints("gridtype"), floats("temperature")),
		PackedEntity: true,
	}
	RodLayout = &result.Layout{
		Name: "Rod",
		Kind: format.KindResult,
		Fields: []result.Field{
			{Name: "axial", Kind: format.FieldFloat},
			{Name: "axial_margin", Kind: format.FieldFloat, RealOnly: true},
			{Name: "torsion", Kind: format.FieldFloat},
			{Name: "torsion_margin", Kind: format.FieldFloat, RealOnly: true},
		},
		Complexable:  true,
		Complex:      format.ComplexInterleaved,
		PackedEntity: true,
	}
	PlateLayout = &result.Layout{
		Name:         "Plate",
		Kind:         format.KindResult,
		Fields:       floats("fiber", "oxx", "oyy", "txy", "angle", "major", "minor", "von_mises"),
		PackedEntity: true,
	}
	StrainEnergyLayout = &result.Layout{
		Name:         "StrainEnergy",
		Kind:         format.KindResult,
		Fields:       floats("energy", "percent", "density"),
		PackedEntity: true,
	}
	EigenvalueSummaryLayout = &result.Layout{
		Name:         "EigenvalueSummary",
		Kind:         format.KindResult,
		Fields:       concat(ints("order"), floats("eigenvalue", "radians", "cycles", "gen_mass", "gen_stiffness")),
		PackedEntity: true,
	}
	ComplexEigenSummaryLayout = &result.Layout{
		Name:         "ComplexEigenvalueSummary",
		Kind:         format.KindResult,
		Fields:       concat(ints("order"), floats("real", "imag", "frequency", "damping")),
		PackedEntity: true,
	}
	MatrixLayout = &result.Layout{
		Name:         "Matrix",
		Kind:         format.KindResult,
		Fields:       floats("value"),
		Complexable:  true,
		Complex:      format.ComplexInterleaved,
		RepeatAux0:   true,
		PackedEntity: true,
	}
	DesignResponseLayout = &result.Layout{
		Name:         "DesignResponse",
		Kind:         format.KindResult,
		Fields:       concat(ints("type"), floats("value", "lower", "upper")),
		PackedEntity: true,
	}

	GridLayout = &result.Layout{
		Name:   "GRID",
		Kind:   format.KindGeometry,
		Fields: concat(ints("cp"), floats("x", "y", "z"), ints("cd", "ps", "seid")),
	}
	Cord2RLayout = &result.Layout{
		Name:   "CORD2R",
		Kind:   format.KindGeometry,
		Fields: concat(ints("rid"), floats("a1", "a2", "a3", "b1", "b2", "b3", "c1", "c2", "c3")),
	}
	Cord2CLayout = &result.Layout{
		Name:   "CORD2C",
		Kind:   format.KindGeometry,
		Fields: Cord2RLayout.Fields,
	}
	RodElementLayout = &result.Layout{
		Name:   "CROD",
		Kind:   format.KindGeometry,
		Fields: ints("pid", "n1", "n2"),
	}
	Quad4ElementLayout = &result.Layout{
		Name:   "CQUAD4",
		Kind:   format.KindGeometry,
		Fields: ints("pid", "n1", "n2", "n3", "n4"),
	}
	Tria3ElementLayout = &result.Layout{
		Name:   "CTRIA3",
		Kind:   format.KindGeometry,
		Fields: ints("pid", "n1", "n2", "n3"),
	}
)

// Entry describes one built-in catalog entry.
type Entry struct {
	ID     ID
	Label  string
	Layout *result.Layout
	Name   string
}

var catalog = []Entry{
	{ID{CodeDisplacement, 0, Version}, "Displacement", NodeVectorLayout, "OUGV1"},
	{ID{CodeLoadVector, 0, Version}, "LoadVector", NodeVectorLayout, "OPG1"},
	{ID{CodeSPCForce, 0, Version}, "SPCForce", NodeVectorLayout, "OQG1"},
	{ID{CodeEigenvector, 0, Version}, "Eigenvector", NodeVectorLayout, "OUGV1"},
	{ID{CodeVelocity, 0, Version}, "Velocity", NodeVectorLayout, "OVG1"},
	{ID{CodeAcceleration, 0, Version}, "Acceleration", NodeVectorLayout, "OAG1"},
	{ID{CodeMPCForce, 0, Version}, "MPCForce", NodeVectorLayout, "OQMG1"},
	{ID{CodeTemperature, 0, Version}, "Temperature", TemperatureLayout, "OUGV1"},
	{ID{CodeStress, ElemRod, Version}, "RodStress", RodLayout, "OES1"},
	{ID{CodeStrain, ElemRod, Version}, "RodStrain", RodLayout, "OSTR1"},
	{ID{CodeStress, ElemQuad4, Version}, "Quad4Stress", PlateLayout, "OES1"},
	{ID{CodeStrain, ElemQuad4, Version}, "Quad4Strain", PlateLayout, "OSTR1"},
	{ID{CodeStress, ElemTria3, Version}, "Tria3Stress", PlateLayout, "OES1"},
	{ID{CodeStrain, ElemTria3, Version}, "Tria3Strain", PlateLayout, "OSTR1"},
	{ID{CodeStrainEnergy, 0, Version}, "StrainEnergy", StrainEnergyLayout, "ONRGY1"},
	{ID{CodeEigenvalueSummary, 0, Version}, "EigenvalueSummary", EigenvalueSummaryLayout, "LAMA"},
	{ID{CodeComplexEigenSummary, 0, Version}, "ComplexEigenvalueSummary", ComplexEigenSummaryLayout, "CLAMA"},
	{ID{CodeMatrix, 0, Version}, "Matrix", MatrixLayout, "MATRIX"},
	{ID{CodeDesignResponse, 0, Version}, "DesignResponse", DesignResponseLayout, "DESRESP"},
	{ID{CodeGrid, 0, Version}, "GeomGrid", GridLayout, "GEOM1"},
	{ID{CodeCord2R, 0, Version}, "GeomCord2R", Cord2RLayout, "GEOM1"},
	{ID{CodeCord2C, 0, Version}, "GeomCord2C", Cord2CLayout, "GEOM1"},
	{ID{CodeRod, 0, Version}, "GeomRod", RodElementLayout, "GEOM2"},
	{ID{CodeQuad4, 0, Version}, "GeomQuad4", Quad4ElementLayout, "GEOM2"},
	{ID{CodeTria3, 0, Version}, "GeomTria3", Tria3ElementLayout, "GEOM2"},
}

// Catalog returns the built-in catalog entries in registration order.
func Catalog() []Entry {
	out := make([]Entry, len(catalog))
	copy(out, catalog)

	return out
}

// Label returns the human readable name of a category, or "" when the
// category is not built in.
func Label(code, elementType int32) string {
	for _, e := range catalog {
		if e.ID.Code == code && e.ID.ElementType == elementType {
			return e.Label
		}
	}

	return ""
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns a new registry holding the built-in catalog.
// The returned registry may be extended without affecting other callers.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, e := range catalog {
			defaultRegistry.MustRegister(e.ID, NewLayoutCodec(e.Layout, e.Name))
		}
	})

	return defaultRegistry.Clone()
}
