package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/newsfeed/internal/news"
)

//go:embed raw_article.schema.json
var rawArticleSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ItemError reports why one record of a batch was rejected.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// Batch is the outcome of validating a multi-record payload.
type Batch struct {
	Articles []news.RawArticle
	Indexes  []int
	Errors   []ItemError
}

// ValidateRawArticle checks one JSON object against the RawArticle schema and
// returns the decoded record.
func ValidateRawArticle(payload json.RawMessage) (*news.RawArticle, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}
	return validateValue(value)
}

// ValidateBatch accepts a single object, a JSON array of objects or
// newline-delimited objects. Invalid records are collected in Errors and do
// not stop the rest of the batch; malformed JSON fails the whole payload.
func ValidateBatch(payload []byte) (Batch, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Batch{}, fmt.Errorf("payload is empty")
	}

	var values []any
	if trimmed[0] == '[' {
		value, err := decodeStrictJSON(trimmed)
		if err != nil {
			return Batch{}, fmt.Errorf("decode payload JSON: %w", err)
		}
		items, ok := value.([]any)
		if !ok {
			return Batch{}, fmt.Errorf("payload array is malformed")
		}
		values = items
	} else {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.UseNumber()
		for {
			var value any
			err := decoder.Decode(&value)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return Batch{}, fmt.Errorf("decode record %d: %w", len(values), err)
			}
			values = append(values, value)
		}
	}

	var out Batch
	for i, value := range values {
		article, err := validateValue(value)
		if err != nil {
			out.Errors = append(out.Errors, ItemError{Index: i, Err: err})
			continue
		}
		out.Articles = append(out.Articles, *article)
		out.Indexes = append(out.Indexes, i)
	}
	return out, nil
}

func validateValue(value any) (*news.RawArticle, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}
	var article news.RawArticle
	if err := json.Unmarshal(normalized, &article); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := validateSemantics(&article); err != nil {
		return nil, err
	}
	return &article, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("raw_article.schema.json", strings.NewReader(rawArticleSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("raw_article.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(article *news.RawArticle) error {
	if article == nil {
		return fmt.Errorf("payload is nil")
	}
	if strings.TrimSpace(article.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if err := validateURI("url", article.URL); err != nil {
		return err
	}
	if strings.TrimSpace(article.ImageURL) != "" {
		if err := validateURI("image_url", article.ImageURL); err != nil {
			return err
		}
	}
	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}
