package hydrate

import (
	"github.com/verte-zerg/lexivault/internal/model"
	"github.com/verte-zerg/lexivault/internal/schema"
)

// Record decodes a stored document and hydrates it onto the current defaults.
func Record(data []byte) (model.Record, error) {
	doc, err := Decode(data)
	if err != nil {
		return model.Record{}, err
	}
	return Value(schema.DefaultRecord(), doc), nil
}
