package apiclient

import (
	_ "embed"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/question.json
var questionSchemaJSON []byte

var questionSchema = mustSchema(questionSchemaJSON)

func mustSchema(raw []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(err)
	}
	return s
}

func validateQuestion(raw []byte) error {
	result, err := questionSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrapf(ErrInvalidResponse, "decode: %v", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.Wrap(ErrInvalidResponse, strings.Join(msgs, "; "))
}
