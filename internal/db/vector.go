package db

import (
	"fmt"
	"strconv"
	"strings"
)

// toVectorLiteral renders values in pgvector's text form, "[v1,v2,...]".
func toVectorLiteral(values []float64) string {
	var b strings.Builder
	b.Grow(len(values) * 10)
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func nullableVectorLiteral(values []float64) *string {
	if len(values) == 0 {
		return nil
	}
	literal := toVectorLiteral(values)
	return &literal
}

// parseVectorLiteral is the inverse of toVectorLiteral for embedding::text reads.
func parseVectorLiteral(raw string) ([]float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, fmt.Errorf("vector literal %q is not bracketed", truncate(trimmed, 32))
	}
	body := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if body == "" {
		return []float64{}, nil
	}

	parts := strings.Split(body, ",")
	out := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseNullableVector(raw *string) ([]float64, error) {
	if raw == nil {
		return nil, nil
	}
	return parseVectorLiteral(*raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
