package bankrec

import (
	"context"
	"fmt"
	"io"

	"github.com/jerry-enebeli/bankrec/internal/apierror"
	"github.com/jerry-enebeli/bankrec/model"
	"gopkg.in/yaml.v3"
)

// ModelFile is the YAML document accepted by ImportReconcileModels.
type ModelFile struct {
	Models []model.ReconcileModel `yaml:"models"`
}

// ImportReconcileModels loads reconcile models from a YAML document. Every model is validated
// before any is stored. A model whose model_id already exists replaces the stored one.
func (s *BankRec) ImportReconcileModels(ctx context.Context, r io.Reader) ([]model.ReconcileModel, error) {
	ctx, span := tracer.Start(ctx, "ImportReconcileModels")
	defer span.End()

	var file ModelFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("invalid model file: %v", err), nil)
	}
	if len(file.Models) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "model file has no models", nil)
	}

	for i, m := range file.Models {
		if err := m.Validate(); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("model %d (%s): %v", i+1, m.Name, err), nil)
		}
	}

	stored := make([]model.ReconcileModel, 0, len(file.Models))
	for _, m := range file.Models {
		saved, err := s.importReconcileModel(ctx, m)
		if err != nil {
			return stored, fmt.Errorf("importing model %q: %w", m.Name, err)
		}
		stored = append(stored, saved)
	}
	return stored, nil
}

func (s *BankRec) importReconcileModel(ctx context.Context, m model.ReconcileModel) (model.ReconcileModel, error) {
	if m.ModelID == "" {
		return s.CreateReconcileModel(ctx, m)
	}
	_, err := s.datasource.GetReconcileModel(ctx, m.ModelID)
	switch {
	case err == nil:
		return s.UpdateReconcileModel(ctx, m)
	case apierror.IsNotFound(err):
		return s.CreateReconcileModel(ctx, m)
	default:
		return model.ReconcileModel{}, err
	}
}
