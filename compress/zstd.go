package compress

// Zstd gives the smallest side files. The pure Go encoder is used unless the
// binary is built with cgo and the gozstd tag.
type Zstd struct{}

// zstdLevel is shared by both implementations.
const zstdLevel = 3
