package core

import (
	"context"

	"github.com/JonMunkholm/sheetvault/internal/store"
)

// AddRow appends a row to a sheet, in the workbook when it exists and in the
// cache otherwise.
func (s *Service) AddRow(ctx context.Context, filename, sheet string, values map[string]any, user *store.User) (*RowResult, error) {
	m, err := s.reconciler.AddRow(ctx, filename, sheet, values, user)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, user, AuditLogParams{
		Action:    ActionRowAdd,
		Filename:  decodeName(filename),
		SheetName: decodeName(sheet),
		RowID:     m.RowNumber,
		Detail:    map[string]any{"mode": m.Mode, "values": withoutRowID(values)},
	})
	return &RowResult{Message: "Row added", RowNumber: m.RowNumber, Mode: m.Mode}, nil
}

// UpdateRow overwrites the submitted fields of the row identified by the
// _row_id value of values.
func (s *Service) UpdateRow(ctx context.Context, filename, sheet string, values map[string]any, user *store.User) (*RowResult, error) {
	rowID, err := ParseRowID(values[store.RowIDKey])
	if err != nil {
		return nil, err
	}
	m, err := s.reconciler.UpdateRow(ctx, filename, sheet, rowID, withoutRowID(values), user)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, user, AuditLogParams{
		Action:    ActionRowUpdate,
		Filename:  decodeName(filename),
		SheetName: decodeName(sheet),
		RowID:     rowID,
		Detail:    map[string]any{"mode": m.Mode, "values": withoutRowID(values)},
	})
	return &RowResult{Message: "Row updated", RowNumber: rowID, Mode: m.Mode}, nil
}

// DeleteRow removes the row identified by rowID, as sent by the client.
func (s *Service) DeleteRow(ctx context.Context, filename, sheet string, rowID any, user *store.User) (*RowResult, error) {
	id, err := ParseRowID(rowID)
	if err != nil {
		return nil, err
	}
	m, err := s.reconciler.DeleteRow(ctx, filename, sheet, id, user)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, user, AuditLogParams{
		Action:    ActionRowDelete,
		Filename:  decodeName(filename),
		SheetName: decodeName(sheet),
		RowID:     id,
		Detail:    map[string]any{"mode": m.Mode},
	})
	return &RowResult{Message: "Row deleted", RowNumber: id, Mode: m.Mode}, nil
}
