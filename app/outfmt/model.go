package outfmt

import (
	"github.com/ukcgt/cgtcalc/cgt"
)

type OutputType int

const (
	Matches OutputType = iota
	Summary
)

type ReportWriter interface {
	PrintRenderTable(outType OutputType, name string, tableModel *cgt.RenderTable) error
}
