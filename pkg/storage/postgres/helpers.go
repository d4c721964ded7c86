package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

func jsonBytes(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	if data == nil {
		return nil
	}

	return json.Unmarshal(data, v)
}

func createError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pkgerrors.ErrEntityExists
	}

	return fmt.Errorf("%w: %w", ErrCreate, err)
}
