package analysis

import (
	"context"
	"fmt"
)

// InferenceRequest is one call to an inference backend
type InferenceRequest struct {
	Operation  string
	Model      string
	Text       string
	Image      []byte
	ImageType  string
	Parameters map[string]string
}

// Backend runs models
type Backend interface {
	Infer(ctx context.Context, req InferenceRequest) ([]byte, error)
}

// BackendFunc adapts a function to Backend
type BackendFunc func(ctx context.Context, req InferenceRequest) ([]byte, error)

// Infer calls f
func (f BackendFunc) Infer(ctx context.Context, req InferenceRequest) ([]byte, error) {
	return f(ctx, req)
}

// Spec describes an operation served by a backend model
type Spec struct {
	Name        string
	Model       string
	Input       InputKind
	Description string
	Required    []string
}

// DefaultSpecs is the built-in operation set
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "sentiment_analysis", Model: "cardiffnlp/twitter-roberta-base-sentiment", Input: InputText,
			Description: "Classify text as negative, neutral or positive"},
		{Name: "image_classification", Model: "google/vit-base-patch16-224", Input: InputImage,
			Description: "Label the contents of an image"},
		{Name: "text_summarization", Model: "facebook/bart-large-cnn", Input: InputText,
			Description: "Abstractive summary of the text"},
		{Name: "text_generation", Model: "gpt2", Input: InputText,
			Description: "Continue the text"},
		{Name: "named_entity_recognition", Model: "dbmdz/bert-large-cased-finetuned-conll03-english", Input: InputText,
			Description: "Find people, places and organizations"},
		{Name: "object_detection", Model: "facebook/detr-resnet-50", Input: InputImage,
			Description: "Locate objects in an image"},
		{Name: "question_answering", Model: "deepset/roberta-base-squad2", Input: InputText,
			Description: "Answer the question parameter from the text", Required: []string{"question"}},
		{Name: "language_detection", Model: "papluca/xlm-roberta-base-language-detection", Input: InputText,
			Description: "Detect the language of the text"},
		{Name: "emotion_detection", Model: "j-hartmann/emotion-english-distilroberta-base", Input: InputText,
			Description: "Classify the emotion expressed by the text"},
		{Name: "translation_en_to_fr", Model: "t5-base", Input: InputText,
			Description: "Translate English text to French"},
		{Name: "zero_shot_classification", Model: "facebook/bart-large-mnli", Input: InputText,
			Description: "Score the text against comma separated candidate_labels", Required: []string{"candidate_labels"}},
	}
}

// RegisterSpecs registers each spec as an operation calling backend. Later
// specs override earlier ones with the same name.
func RegisterSpecs(r *Registry, backend Backend, specs ...Spec) error {
	for _, s := range specs {
		s := s
		err := r.Register(Operation{
			Name:        s.Name,
			Description: s.Description,
			Input:       s.Input,
			Model:       s.Model,
			Required:    s.Required,
			Fn: func(ctx context.Context, in Input) ([]byte, error) {
				return backend.Infer(ctx, InferenceRequest{
					Operation:  s.Name,
					Model:      s.Model,
					Text:       in.Text,
					Image:      in.Image,
					ImageType:  in.ImageType,
					Parameters: in.Parameters,
				})
			},
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", s.Name, err)
		}
	}
	return nil
}

// RegisterDefaults registers the built-in operations with overrides applied.
// An override naming a built-in replaces its model and keeps any field it
// leaves empty; other overrides add new operations.
func RegisterDefaults(r *Registry, backend Backend, overrides ...Spec) error {
	return RegisterSpecs(r, backend, Merge(DefaultSpecs(), overrides)...)
}

// Merge applies overrides to base by name
func Merge(base, overrides []Spec) []Spec {
	out := append([]Spec(nil), base...)
	index := make(map[string]int, len(out))
	for i, s := range out {
		index[s.Name] = i
	}

	for _, o := range overrides {
		i, ok := index[o.Name]
		if !ok {
			index[o.Name] = len(out)
			out = append(out, o)
			continue
		}
		merged := out[i]
		if o.Model != "" {
			merged.Model = o.Model
		}
		if o.Input != "" {
			merged.Input = o.Input
		}
		if o.Description != "" {
			merged.Description = o.Description
		}
		if o.Required != nil {
			merged.Required = o.Required
		}
		out[i] = merged
	}
	return out
}
