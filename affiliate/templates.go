package affiliate

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const TemplatesCollection = "templates"

// Template is a message layout with the affiliate identity used for the
// links inside it.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=128"`
	AffiliateID string    `json:"affiliate_id" validate:"max=64"`
	SubID       string    `json:"sub_id" validate:"max=64"`
	Body        string    `json:"body" validate:"max=4096"`
	CreatedAt   time.Time `json:"created_at"`
}

type TemplateStore struct {
	db       types.DatabaseManager
	validate *validator.Validate
}

func NewTemplateStore(db types.DatabaseManager) *TemplateStore {
	return &TemplateStore{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *TemplateStore) Create(ctx context.Context, template Template) (*Template, error) {
	if err := s.validate.Struct(template); err != nil {
		return nil, types.Errorf(types.ErrTemplateInvalid, "%v", err)
	}

	template.ID = ""
	template.CreatedAt = time.Now().UTC()

	document, err := toDocument(template)
	if err != nil {
		return nil, err
	}

	ids, err := s.db.CreateDocuments(ctx, types.CreateDocumentsRequest{
		Collection: TemplatesCollection,
		Data:       []interface{}{document},
	})
	if err != nil {
		return nil, err
	}

	template.ID = ids[0]
	return &template, nil
}

func (s *TemplateStore) Get(ctx context.Context, id string) (*Template, error) {
	documents, _, err := s.db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: TemplatesCollection,
		Filter:     map[string]interface{}{types.DocumentIDField: id},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}

	if len(documents) == 0 {
		return nil, types.Errorf(types.ErrTemplateNotFound, "id: %s", id)
	}

	return fromDocument(documents[0])
}

func (s *TemplateStore) List(ctx context.Context, limit, skip int) ([]Template, int64, error) {
	documents, total, err := s.db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: TemplatesCollection,
		Limit:      limit,
		Skip:       skip,
	})
	if err != nil {
		return nil, 0, err
	}

	templates := make([]Template, 0, len(documents))
	for _, document := range documents {
		template, err := fromDocument(document)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, *template)
	}

	return templates, total, nil
}

// Update replaces the editable fields of a template. ID and CreatedAt are kept.
func (s *TemplateStore) Update(ctx context.Context, id string, template Template) (*Template, error) {
	if err := s.validate.Struct(template); err != nil {
		return nil, types.Errorf(types.ErrTemplateInvalid, "%v", err)
	}

	updated, err := s.db.UpdateDocuments(ctx, types.UpdateDocumentsRequest{
		Collection: TemplatesCollection,
		Filter:     map[string]interface{}{types.DocumentIDField: id},
		Data: map[string]interface{}{
			"$set": map[string]interface{}{
				"name":         template.Name,
				"affiliate_id": template.AffiliateID,
				"sub_id":       template.SubID,
				"body":         template.Body,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	if updated == 0 {
		return nil, types.Errorf(types.ErrTemplateNotFound, "id: %s", id)
	}

	return s.Get(ctx, id)
}

func (s *TemplateStore) Delete(ctx context.Context, id string) error {
	deleted, err := s.db.DeleteDocuments(ctx, types.DeleteDocumentsRequest{
		Collection: TemplatesCollection,
		Filter:     map[string]interface{}{types.DocumentIDField: id},
	})
	if err != nil {
		return err
	}

	if deleted == 0 {
		return types.Errorf(types.ErrTemplateNotFound, "id: %s", id)
	}

	return nil
}

func toDocument(template Template) (map[string]interface{}, error) {
	data, err := utils.Marshal(template)
	if err != nil {
		return nil, types.WrapError(err, "failed to encode template")
	}

	var document map[string]interface{}
	if err := utils.Unmarshal(data, &document); err != nil {
		return nil, types.WrapError(err, "failed to encode template")
	}

	delete(document, types.DocumentIDField)
	return document, nil
}

func fromDocument(document map[string]interface{}) (*Template, error) {
	data, err := utils.Marshal(document)
	if err != nil {
		return nil, types.WrapError(err, "failed to decode template")
	}

	template := &Template{}
	if err := utils.Unmarshal(data, template); err != nil {
		return nil, types.WrapError(err, "failed to decode template")
	}

	return template, nil
}
