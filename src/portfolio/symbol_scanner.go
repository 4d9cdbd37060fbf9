package portfolio

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"sort"
	"strings"

	"portfolio-dashboard/src/helpers"
	"portfolio-dashboard/src/interfaces"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"
)

// SourceLister enumerates the ledger files to scan.
type SourceLister interface {
	GetAllSourceFiles() ([]models.MSourceFile, error)
}

var (
	symbolColumns = []string{"symbol", "ticker"}
	typeColumns   = []string{"type", "asset_type", "asset"}
)

// LedgerSymbolScanner unions the symbols of the current holdings with every
// symbol referenced by a ledger row.
type LedgerSymbolScanner struct {
	Holdings interfaces.IPortfolioStore
	Sources  SourceLister
	Logger   *logger.Logger
}

// -----------------------------------------------------------------------------

func NewLedgerSymbolScanner(holdings interfaces.IPortfolioStore, sources SourceLister, log *logger.Logger) *LedgerSymbolScanner {
	if log == nil {
		log = logger.NewLogger(nil, "LedgerSymbolScanner")
	}
	return &LedgerSymbolScanner{Holdings: holdings, Sources: sources, Logger: log}
}

// -----------------------------------------------------------------------------

// DiscoverSymbols returns the symbol union sorted by symbol. Holdings decide the
// asset type when a symbol appears in both places. Unreadable ledgers are
// logged and skipped.
func (s *LedgerSymbolScanner) DiscoverSymbols(ctx context.Context) ([]models.MSymbolRef, error) {
	found := make(map[string]models.MAssetType)

	if s.Holdings != nil {
		holdings, err := s.Holdings.GetMostRecentHoldings(ctx)
		if err != nil {
			return nil, err
		}
		for _, h := range holdings {
			if sym, err := helpers.NormalizeSymbol(h.Symbol); err == nil {
				found[sym] = assetTypeOrStock(h.Type)
			}
		}
	}

	if s.Sources != nil {
		files, err := s.Sources.GetAllSourceFiles()
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			refs, err := ScanLedger(f.Path)
			if err != nil {
				s.Logger.Warning("Skipping ledger %s: %v", f.Path, err)
				continue
			}
			for _, ref := range refs {
				if _, known := found[ref.Symbol]; !known {
					found[ref.Symbol] = ref.Type
				}
			}
		}
	}

	refs := make([]models.MSymbolRef, 0, len(found))
	for sym, typ := range found {
		refs = append(refs, models.MSymbolRef{Symbol: sym, Type: typ})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Symbol < refs[j].Symbol })
	return refs, nil
}

// -----------------------------------------------------------------------------

// ScanLedger reads the symbol column (and the type column when present) of a
// CSV ledger.
func ScanLedger(path string) ([]models.MSymbolRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	symIdx := columnIndex(header, symbolColumns)
	if symIdx < 0 {
		return nil, errors.New("no symbol column")
	}
	typeIdx := columnIndex(header, typeColumns)

	seen := make(map[string]bool)
	var refs []models.MSymbolRef
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return refs, err
		}
		if symIdx >= len(row) {
			continue
		}
		sym, err := helpers.NormalizeSymbol(row[symIdx])
		if err != nil || seen[sym] {
			continue
		}
		seen[sym] = true

		typ := models.AssetStock
		if typeIdx >= 0 && typeIdx < len(row) {
			typ = assetTypeOrStock(models.MAssetType(strings.ToLower(strings.TrimSpace(row[typeIdx]))))
		}
		refs = append(refs, models.MSymbolRef{Symbol: sym, Type: typ})
	}
	return refs, nil
}

// -----------------------------------------------------------------------------

func columnIndex(header []string, names []string) int {
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		for _, name := range names {
			if col == name {
				return i
			}
		}
	}
	return -1
}

func assetTypeOrStock(t models.MAssetType) models.MAssetType {
	if t == models.AssetCrypto {
		return models.AssetCrypto
	}
	return models.AssetStock
}
