// Package flows implements the flow synchronization engine: exporting flows
// into canonical, diff-friendly documents and uploading documents back.
package flows

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tcmartin/connectsync/pkg/utils"
)

// GridSize is the canvas snap grid of the flow editor
const GridSize = 20

// Document is a flow document. Fields the engine does not know about are
// carried through untouched, and numbers keep their original text unless the
// engine rewrites them.
type Document struct {
	fields map[string]any
}

// ParseDocument parses the JSON text of a flow
func ParseDocument(data []byte) (*Document, error) {
	var fields map[string]any
	if err := utils.UnmarshalNumbers(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid flow document: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("invalid flow document: not an object")
	}
	return &Document{fields: fields}, nil
}

// MarshalJSON implements json.Marshaler
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.fields)
}

// MarshalIndent returns the canonical serialization: 2-space indentation,
// sorted keys, no HTML escaping
func (d *Document) MarshalIndent() ([]byte, error) {
	return utils.MarshalPretty(d.fields)
}

// Metadata returns the metadata object, creating it when absent. Legacy
// array-shaped metadata must have been migrated first.
func (d *Document) Metadata() map[string]any {
	if m, ok := d.fields["metadata"].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	d.fields["metadata"] = m
	return m
}

// Modules returns the module list
func (d *Document) Modules() []any {
	modules, _ := d.fields["modules"].([]any)
	return modules
}

// Name returns metadata.name
func (d *Document) Name() string {
	name, _ := d.Metadata()["name"].(string)
	return name
}

// Canonicalize rewrites the document into its canonical form: metadata is
// migrated to the current shape, positions are snapped to the editor grid,
// and modules are ordered by position. Canonicalize is idempotent.
func (d *Document) Canonicalize() {
	d.migrateMetadata()

	meta := d.Metadata()
	grid := 0.0
	if truthy(meta["snapToGrid"]) {
		grid = GridSize
	}

	if pos, ok := meta["entryPointPosition"].(map[string]any); ok {
		snapPosition(pos, grid)
	}
	for _, m := range d.Modules() {
		if pos := modulePosition(m); pos != nil {
			snapPosition(pos, grid)
		}
	}

	d.sortModules()
}

// migrateMetadata folds legacy metadata, a list of single-key objects, into
// one object. Later entries win.
func (d *Document) migrateMetadata() {
	legacy, ok := d.fields["metadata"].([]any)
	if !ok {
		return
	}
	merged := map[string]any{}
	for _, fragment := range legacy {
		if obj, ok := fragment.(map[string]any); ok {
			for k, v := range obj {
				merged[k] = v
			}
		}
	}
	d.fields["metadata"] = merged
}

// sortModules orders modules by their zero-padded "x,y" position key. The
// sort is stable so modules sharing a position keep their relative order.
func (d *Document) sortModules() {
	modules := d.Modules()
	if len(modules) < 2 {
		return
	}

	keys := make([]string, len(modules))
	indexed := make([]int, len(modules))
	for i, m := range modules {
		indexed[i] = i
		keys[i] = SortKey(modulePosition(m))
	}
	sort.SliceStable(indexed, func(a, b int) bool {
		return keys[indexed[a]] < keys[indexed[b]]
	})

	sorted := make([]any, len(modules))
	for i, idx := range indexed {
		sorted[i] = modules[idx]
	}
	d.fields["modules"] = sorted
}

// SortKey returns the ordering key of a position: both coordinates rounded,
// zero-padded to four digits and joined with a comma
func SortKey(pos map[string]any) string {
	x, _ := number(pos["x"])
	y, _ := number(pos["y"])
	return pad4(x) + "," + pad4(y)
}

func pad4(v float64) string {
	s := strconv.FormatInt(int64(jsRound(v)), 10)
	if len(s) < 4 {
		s = strings.Repeat("0", 4-len(s)) + s
	}
	return s
}

// SnapCoordinate rounds v to the nearest multiple of grid. A zero grid leaves
// v unchanged.
func SnapCoordinate(v, grid float64) float64 {
	if grid == 0 {
		return v
	}
	return jsRound(v/grid) * grid
}

func snapPosition(pos map[string]any, grid float64) {
	if grid == 0 {
		return
	}
	for _, axis := range []string{"x", "y"} {
		if v, ok := number(pos[axis]); ok {
			pos[axis] = jsonNumber(SnapCoordinate(v, grid))
		}
	}
}

func modulePosition(module any) map[string]any {
	m, ok := module.(map[string]any)
	if !ok {
		return nil
	}
	meta, ok := m["metadata"].(map[string]any)
	if !ok {
		return nil
	}
	pos, _ := meta["position"].(map[string]any)
	return pos
}

// jsRound rounds half-way values towards positive infinity, matching the
// editor's own rounding so that snapped positions agree with the canvas
func jsRound(v float64) float64 {
	return math.Floor(v + 0.5)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func jsonNumber(f float64) json.Number {
	if f == 0 {
		f = 0 // drop the sign of negative zero
	}
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// truthy mirrors how the editor treats flags stored with loose types
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
