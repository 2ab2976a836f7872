package flow

import (
	"context"
	"fmt"

	"github.com/flowforge/flowcore/flow/store"
)

// arrayStagingPrefix marks keys in the resolver's intermediate map that
// hold partially-filled arrays destined for a "name[i]" handle, so the
// final merge step can tell them apart from ordinary scalar entries.
const arrayStagingPrefix = "\x00array:"

// ResolveInputs builds the inputs map a handler receives for target,
// following spec step-by-step: for each in-edge, skip if the source has no
// current output, skip if that Execution is missing, extract its value via
// the resultMetadata/resultUrl/resultPath fallback chain (skip if all
// absent), then decode the target handle into the final map.
func ResolveInputs(ctx context.Context, s store.Store, target store.Node, inEdges []store.Edge, nodesByID map[string]store.Node) (map[string]interface{}, error) {
	inputs := make(map[string]interface{})
	staged := make(map[string]map[int]interface{})

	for _, e := range inEdges {
		source, ok := nodesByID[e.SourceNodeID]
		if !ok || source.CurrentOutputID == nil {
			continue
		}

		exec, err := s.GetExecution(ctx, *source.CurrentOutputID)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("resolver: load execution %s: %w", *source.CurrentOutputID, err)
		}

		value, ok := extractOutputValue(exec, e.SourceOutput)
		if !ok {
			continue
		}

		applyHandle(e.TargetInput, value, inputs, staged)
	}

	mergeStagedArrays(inputs, staged)
	return inputs, nil
}

// extractOutputValue implements the three-step fallback chain: the named
// output key in resultMetadata, then resultMetadata.resultUrl, then the
// execution's own resultPath.
func extractOutputValue(exec store.Execution, sourceOutputKey string) (interface{}, bool) {
	if exec.ResultMetadata != nil {
		if v, ok := exec.ResultMetadata[sourceOutputKey]; ok {
			return v, true
		}
		if v, ok := exec.ResultMetadata["resultUrl"]; ok {
			return v, true
		}
	}
	if exec.ResultPath != nil {
		return *exec.ResultPath, true
	}
	return nil, false
}

// applyHandle decodes a target handle string and writes value into inputs
// (or staged, for array-indexed handles) per the handle grammar.
func applyHandle(handle string, value interface{}, inputs map[string]interface{}, staged map[string]map[int]interface{}) {
	if name, idx, ok := parseArrayIndex(handle); ok {
		if staged[name] == nil {
			staged[name] = make(map[int]interface{})
		}
		staged[name][idx] = value
		return
	}

	if key, ok := stripParamOrInputPrefix(handle); ok {
		if arr, isArray := value.([]interface{}); isArray {
			inputs[key] = arr
		} else {
			inputs[key] = coerceToString(value)
		}
		return
	}

	inputs[handle] = value
}

// parseArrayIndex recognizes "name[i]" and returns (name, i, true).
func parseArrayIndex(handle string) (string, int, bool) {
	open := -1
	for i := len(handle) - 1; i >= 0; i-- {
		if handle[i] == '[' {
			open = i
			break
		}
	}
	if open < 0 || handle[len(handle)-1] != ']' {
		return "", 0, false
	}
	name := handle[:open]
	idxStr := handle[open+1 : len(handle)-1]
	if name == "" || idxStr == "" {
		return "", 0, false
	}
	idx := 0
	for _, r := range idxStr {
		if r < '0' || r > '9' {
			return "", 0, false
		}
		idx = idx*10 + int(r-'0')
	}
	return name, idx, true
}

// stripParamOrInputPrefix recognizes "param-X" and "input-X", both of
// which route to key X.
func stripParamOrInputPrefix(handle string) (string, bool) {
	const paramPrefix = "param-"
	const inputPrefix = "input-"
	if len(handle) > len(paramPrefix) && handle[:len(paramPrefix)] == paramPrefix {
		return handle[len(paramPrefix):], true
	}
	if len(handle) > len(inputPrefix) && handle[:len(inputPrefix)] == inputPrefix {
		return handle[len(inputPrefix):], true
	}
	return "", false
}

func coerceToString(value interface{}) interface{} {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// mergeStagedArrays flattens each staged "name[i]" map into a dense slice
// under name, in index order, without introducing null gaps: any index
// never populated is simply absent rather than nil-padded.
func mergeStagedArrays(inputs map[string]interface{}, staged map[string]map[int]interface{}) {
	for name, byIndex := range staged {
		maxIdx := -1
		for idx := range byIndex {
			if idx > maxIdx {
				maxIdx = idx
			}
		}
		arr := make([]interface{}, 0, len(byIndex))
		for i := 0; i <= maxIdx; i++ {
			if v, ok := byIndex[i]; ok {
				arr = append(arr, v)
			}
		}
		inputs[name] = arr
	}
}
