package dispute

import "github.com/jackc/pgx/v5"

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ContractID, &rec.OpenedBy, &rec.Reason, &rec.Status, &rec.CreatedAt, &rec.ResolvedAt)
	return rec, err
}
