package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Document type codes used as number prefixes.
const (
	DocTypePartRequest = "PR"
	DocTypeGoodsIssue  = "GI"
)

// nextDocumentNumber allocates the next gapless number for typeCode within
// the tenant, e.g. "GI-00042". The sequence row stays locked until the
// caller's transaction ends, so a rollback leaves no gap. Callers take this
// lock after every balance lock.
func nextDocumentNumber(ctx context.Context, tx pgx.Tx, tenantID int, typeCode string) (string, error) {
	var n int64
	err := tx.QueryRow(ctx, `
		INSERT INTO document_sequences (tenant_id, type_code, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, type_code)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number
	`, tenantID, typeCode).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("failed to allocate %s number: %w", typeCode, err)
	}
	return formatDocumentNumber(typeCode, n), nil
}

func formatDocumentNumber(typeCode string, n int64) string {
	return fmt.Sprintf("%s-%05d", typeCode, n)
}
