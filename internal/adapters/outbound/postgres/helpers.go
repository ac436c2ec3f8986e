package postgres

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// bigNumeric converts an integer amount for a NUMERIC column. A nil amount is
// stored as zero.
func bigNumeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{Int: new(big.Int), Valid: true}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Valid: true}
}

// decimalNumeric converts a fraction for a NUMERIC column.
func decimalNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// optionalDecimalNumeric maps nil to SQL NULL.
func optionalDecimalNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return decimalNumeric(*d)
}

// parseBig parses a NUMERIC column selected as text.
func parseBig(column, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("column %s: %q is not an integer", column, s)
	}
	return v, nil
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("column %s: %w", column, err)
	}
	return d, nil
}
