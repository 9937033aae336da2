package intelligence

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/powerbrain/brainmem-go/pkg/model"
)

// EstimateImportance assigns a starting importance to content whose caller
// gave none.
//
// Facts start higher than events (0.7 vs 0.5), and longer content earns up
// to 0.2 more, one point per 200 characters. The result is capped at 1.0.
// Returns ErrValidation for an unknown memory type.
func EstimateImportance(content string, memoryType model.MemoryType) (float64, error) {
	var base float64
	switch memoryType {
	case model.MemoryTypeSemantic:
		base = 0.7
	case model.MemoryTypeEpisodic:
		base = 0.5
	default:
		return 0, model.Validationf("unknown memory type %q", string(memoryType))
	}

	length := float64(utf8.RuneCountInString(strings.TrimSpace(content)))
	return math.Min(base+math.Min(length/200, 0.2), 1.0), nil
}
