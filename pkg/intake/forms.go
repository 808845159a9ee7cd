package intake

import (
	"fmt"
	"sort"
)

// FieldSpec describes a text field of a form
type FieldSpec struct {
	Name     string
	Required bool
	Default  string
	// Long marks free-text fields stored as text rather than string
	Long bool
}

// FileFieldSpec describes a file field of a form
type FileFieldSpec struct {
	Name     string
	Multiple bool
	Required bool
}

// FormSpec describes a form and the collection its records land in
type FormSpec struct {
	// Name identifies the form in logs and URLs
	Name string
	// Collection is the content backend collection
	Collection string
	Fields     []FieldSpec
	Files      []FileFieldSpec
	// TitleField names the text field used as the stored-file stem when the
	// naming policy keys off titles. Empty means the filename is always used.
	TitleField string
}

// Validate checks a submission against the form definition
func (f FormSpec) Validate(sub Submission) error {
	for _, field := range f.Fields {
		if field.Required && sub.Value(field.Name) == "" {
			return &ValidationError{Form: f.Name, Field: field.Name, Reason: "is required"}
		}
	}
	for _, field := range f.Files {
		if !field.Required {
			continue
		}
		attached := false
		for _, up := range sub.Files[field.Name] {
			if up != nil && up.Filename() != "" {
				attached = true
				break
			}
		}
		if !attached {
			return &ValidationError{Form: f.Name, Field: field.Name, Reason: "requires a file"}
		}
	}
	return nil
}

// FieldNames returns the names of all text and file fields
func (f FormSpec) FieldNames() []string {
	names := make([]string, 0, len(f.Fields)+len(f.Files))
	for _, field := range f.Fields {
		names = append(names, field.Name)
	}
	for _, field := range f.Files {
		names = append(names, field.Name)
	}
	return names
}

// Built-in community report forms
var (
	VideosForm = FormSpec{
		Name:       "videos",
		Collection: "videos",
		Fields: []FieldSpec{
			{Name: "whatsapp", Required: true},
			{Name: "cidade", Required: true},
			{Name: "bairro", Required: true},
			{Name: "problema", Required: true, Long: true},
		},
		Files: []FileFieldSpec{
			{Name: "img_path"},
			{Name: "video_path"},
		},
		TitleField: "bairro",
	}

	PetPerdidoForm = FormSpec{
		Name:       "pet-perdido",
		Collection: "pet_perdido",
		Fields: []FieldSpec{
			{Name: "whatsapp", Required: true},
			{Name: "nome_pet", Required: true},
			{Name: "tipo_pet", Required: true},
			{Name: "raca", Required: true},
			{Name: "cidade", Required: true},
			{Name: "bairro", Required: true},
			{Name: "descricao", Required: true, Long: true},
		},
		Files: []FileFieldSpec{
			{Name: "comprovante_path"},
			{Name: "img_path"},
		},
		TitleField: "nome_pet",
	}

	ObjetoPerdidoForm = FormSpec{
		Name:       "objeto-perdido",
		Collection: "objeto_perdido",
		Fields: []FieldSpec{
			{Name: "nome_responsavel", Required: true},
			{Name: "objeto_perdido", Required: true},
			{Name: "descricao_detalhada", Required: true, Long: true},
			{Name: "data_horario", Required: true},
			{Name: "local_perdido", Required: true, Long: true},
			{Name: "possibilidade_levado", Required: true, Long: true},
			{Name: "nome_telefone_contato", Required: true},
			{Name: "recompensa", Required: true},
			{Name: "observacao", Long: true},
		},
		Files: []FileFieldSpec{
			{Name: "fotos"},
		},
		TitleField: "objeto_perdido",
	}

	PropagandaForm = FormSpec{
		Name:       "propaganda",
		Collection: "propaganda",
		Fields: []FieldSpec{
			{Name: "nome_empresa", Required: true},
			{Name: "nome_responsavel", Required: true},
			{Name: "telefone_contato_equipe", Required: true},
			{Name: "telefone_empresa", Required: true},
			{Name: "endereco", Required: true},
			{Name: "tipo_negocio", Required: true},
			{Name: "descricao_oferta", Required: true, Long: true},
			{Name: "formas_pagamento", Required: true},
			{Name: "desconto_vista", Required: true},
			{Name: "parcelas_cartao", Required: true},
			{Name: "promocoes", Long: true},
			{Name: "frase_destaque"},
			{Name: "produto_destaque"},
			{Name: "links_redes"},
			{Name: "outras_informacoes", Long: true},
		},
		Files: []FileFieldSpec{
			{Name: "materiais_divulgacao", Multiple: true},
		},
		TitleField: "nome_empresa",
	}
)

// Forms is a registry of forms keyed by name
type Forms map[string]FormSpec

// DefaultForms returns the built-in forms
func DefaultForms() Forms {
	return NewForms(VideosForm, PetPerdidoForm, ObjetoPerdidoForm, PropagandaForm)
}

// NewForms builds a registry from the given forms
func NewForms(forms ...FormSpec) Forms {
	registry := make(Forms, len(forms))
	for _, f := range forms {
		registry[f.Name] = f
	}
	return registry
}

// Lookup returns the named form
func (f Forms) Lookup(name string) (FormSpec, error) {
	form, ok := f[name]
	if !ok {
		return FormSpec{}, fmt.Errorf("%w: %s", ErrUnknownForm, name)
	}
	return form, nil
}

// Collections returns the distinct collections of all forms, sorted
func (f Forms) Collections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, form := range f {
		if !seen[form.Collection] {
			seen[form.Collection] = true
			out = append(out, form.Collection)
		}
	}
	sort.Strings(out)
	return out
}

// Names returns the form names, sorted
func (f Forms) Names() []string {
	out := make([]string, 0, len(f))
	for name := range f {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
