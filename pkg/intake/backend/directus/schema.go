package directus

import (
	"context"
	"errors"
	"net/http"

	"github.com/tendant/simple-intake/pkg/intake"
)

// Field is one column of a collection
type Field struct {
	Name     string
	Type     string
	Required bool
}

// Collection describes a collection and the fields it must carry
type Collection struct {
	Name   string
	Fields []Field
	// PublicActions are granted to the public role, e.g. "create" or "read"
	PublicActions []string
}

// SchemaResult counts what EnsureSchema created
type SchemaResult struct {
	Collections int
	Fields      int
	Permissions int
}

// Rewrite fields added to collections processed by the rewrite job
const (
	FieldRewrite     = "descricao_ia"
	FieldProcessedAt = "processed_at"
)

// SchemaFromForms derives collection definitions from form specs. Collections
// named in rewriteCollections also get the rewrite fields.
func SchemaFromForms(forms intake.Forms, rewriteCollections ...string) []Collection {
	rewrite := make(map[string]bool, len(rewriteCollections))
	for _, name := range rewriteCollections {
		rewrite[name] = true
	}

	var out []Collection
	for _, name := range forms.Names() {
		form := forms[name]
		coll := Collection{Name: form.Collection}
		for _, f := range form.Fields {
			typ := "string"
			if f.Long {
				typ = "text"
			}
			coll.Fields = append(coll.Fields, Field{Name: f.Name, Type: typ, Required: f.Required})
		}
		for _, f := range form.Files {
			typ := "string"
			if f.Multiple {
				typ = "json"
			}
			coll.Fields = append(coll.Fields, Field{Name: f.Name, Type: typ})
		}
		coll.Fields = append(coll.Fields,
			Field{Name: intake.FieldIP, Type: "string"},
			Field{Name: intake.FieldDatetime, Type: "datetime"},
		)
		if rewrite[form.Collection] {
			coll.Fields = append(coll.Fields,
				Field{Name: FieldRewrite, Type: "text"},
				Field{Name: FieldProcessedAt, Type: "datetime"},
			)
		}
		out = append(out, coll)
	}
	return out
}

// EnsureSchema creates missing collections, fields and public permissions.
// Directus answers 400 for objects that already exist; those are skipped.
func (c *Client) EnsureSchema(ctx context.Context, collections []Collection) (*SchemaResult, error) {
	result := &SchemaResult{}
	for _, coll := range collections {
		body := map[string]interface{}{
			"collection": coll.Name,
			"schema":     map[string]interface{}{"name": coll.Name},
			"meta":       map[string]interface{}{"singleton": false},
		}
		created, err := c.createIfMissing(ctx, "/collections", body, coll.Name, "create_collection")
		if err != nil {
			return result, err
		}
		if created {
			result.Collections++
			c.logger.Info("Created directus collection", "collection", coll.Name)
		}

		for _, f := range coll.Fields {
			body := map[string]interface{}{
				"field": f.Name,
				"type":  f.Type,
			}
			if f.Required {
				body["meta"] = map[string]interface{}{"required": true}
			}
			created, err := c.createIfMissing(ctx, "/fields/"+coll.Name, body, coll.Name, "create_field")
			if err != nil {
				return result, err
			}
			if created {
				result.Fields++
			}
		}

		for _, action := range coll.PublicActions {
			body := map[string]interface{}{
				"collection": coll.Name,
				"action":     action,
				"role":       nil,
			}
			created, err := c.createIfMissing(ctx, "/permissions", body, coll.Name, "create_permission")
			if err != nil {
				return result, err
			}
			if created {
				result.Permissions++
			}
		}
	}
	return result, nil
}

func (c *Client) createIfMissing(ctx context.Context, path string, body interface{}, collection, op string) (bool, error) {
	err := c.call(ctx, http.MethodPost, path, nil, body, nil, collection, op)
	if err == nil {
		return true, nil
	}
	var be *intake.BackendError
	if errors.As(err, &be) && be.StatusCode == http.StatusBadRequest {
		return false, nil
	}
	return false, err
}
