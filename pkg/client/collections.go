package client

import "context"

// crudService implements the shared list/view/create/update/delete
// plumbing for resources that follow the standard REST layout.
type crudService struct {
	client *Client
	path   string
}

func (s *crudService) getList(ctx context.Context, page, perPage int, opts *ListOptions) (*ListResult, error) {
	var result ListResult
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   s.path,
		query:  listQuery(page, perPage, opts),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *crudService) getOne(ctx context.Context, id string, opts *ListOptions) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "GET",
		path:   s.path + "/" + escapePath(id),
		query:  listQuery(0, 0, opts),
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *crudService) create(ctx context.Context, body any) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "POST",
		path:   s.path,
		body:   body,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *crudService) update(ctx context.Context, id string, body any) (Record, error) {
	var record Record
	err := s.client.send(ctx, sendOptions{
		method: "PATCH",
		path:   s.path + "/" + escapePath(id),
		body:   body,
	}, &record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *crudService) delete(ctx context.Context, id string) error {
	return s.client.send(ctx, sendOptions{
		method: "DELETE",
		path:   s.path + "/" + escapePath(id),
	}, nil)
}

// CollectionService manages collection definitions.
type CollectionService struct {
	crud crudService
}

// GetList fetches one page of collection definitions.
func (s *CollectionService) GetList(ctx context.Context, page, perPage int, opts *ListOptions) (*ListResult, error) {
	return s.crud.getList(ctx, page, perPage, opts)
}

// GetFullList returns every collection definition.
func (s *CollectionService) GetFullList(ctx context.Context, opts *ListOptions) ([]Record, error) {
	var all []Record
	effective := ListOptions{SkipTotal: true}
	if opts != nil {
		effective = *opts
		effective.SkipTotal = true
	}
	for page := 1; ; page++ {
		result, err := s.crud.getList(ctx, page, 500, &effective)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Items...)
		if len(result.Items) < 500 {
			return all, nil
		}
	}
}

// GetOne fetches a collection definition by id or name.
func (s *CollectionService) GetOne(ctx context.Context, idOrName string) (Record, error) {
	return s.crud.getOne(ctx, idOrName, nil)
}

// Create registers a new collection.
func (s *CollectionService) Create(ctx context.Context, body any) (Record, error) {
	return s.crud.create(ctx, body)
}

// Update modifies an existing collection definition.
func (s *CollectionService) Update(ctx context.Context, idOrName string, body any) (Record, error) {
	return s.crud.update(ctx, idOrName, body)
}

// Delete removes a collection and all of its records.
func (s *CollectionService) Delete(ctx context.Context, idOrName string) error {
	return s.crud.delete(ctx, idOrName)
}

// Truncate deletes every record of the collection, keeping the schema.
func (s *CollectionService) Truncate(ctx context.Context, idOrName string) error {
	return s.crud.client.send(ctx, sendOptions{
		method: "DELETE",
		path:   s.crud.path + "/" + escapePath(idOrName) + "/truncate",
	}, nil)
}

// Import bulk-creates or replaces collection definitions. With
// deleteMissing the server drops collections absent from the list.
func (s *CollectionService) Import(ctx context.Context, collections []any, deleteMissing bool) error {
	return s.crud.client.send(ctx, sendOptions{
		method: "PUT",
		path:   s.crud.path + "/import",
		body: map[string]any{
			"collections":   collections,
			"deleteMissing": deleteMissing,
		},
	}, nil)
}

// GetScaffolds returns empty collection models for each supported
// collection type.
func (s *CollectionService) GetScaffolds(ctx context.Context) (map[string]Record, error) {
	var result map[string]Record
	err := s.crud.client.send(ctx, sendOptions{
		method: "GET",
		path:   s.crud.path + "/scaffolds",
	}, &result)
	return result, err
}
