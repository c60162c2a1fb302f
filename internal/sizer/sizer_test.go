package sizer

import (
	"testing"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

func buyLeg(token string, price, book float64) domain.OppLeg {
	return domain.OppLeg{TokenID: token, Side: domain.OrderSideBuy, Price: price, BookSize: book}
}

func sellLeg(token string, price, book float64) domain.OppLeg {
	return domain.OppLeg{TokenID: token, Side: domain.OrderSideSell, Price: price, BookSize: book}
}

// Scenario 3: Sizing cap.
func TestScenarioSizingCap(t *testing.T) {
	legs := []domain.OppLeg{
		buyLeg("lowerYes", 0.60, 50),
		buyLeg("upperNo", 0.58, 50),
		buyLeg("rangeNo", 0.70, 50),
	}
	size := Size(legs, 100, nil, 30)
	if size != 30 {
		t.Fatalf("expected size capped to 30, got %v", size)
	}
	required := RequiredCash(legs, size)
	if required != 56.4 {
		t.Fatalf("expected required cash 56.4, got %v", required)
	}
}

func TestSizeZeroWhenBookDepthMissing(t *testing.T) {
	legs := []domain.OppLeg{
		buyLeg("a", 0.5, 0),
		buyLeg("b", 0.5, 50),
	}
	if got := Size(legs, 100, nil, 30); got != 0 {
		t.Fatalf("expected 0 size when depth missing, got %v", got)
	}
}

func TestSizeZeroWhenPriceMissing(t *testing.T) {
	legs := []domain.OppLeg{
		buyLeg("a", 0, 50),
		buyLeg("b", 0.5, 50),
	}
	if got := Size(legs, 100, nil, 30); got != 0 {
		t.Fatalf("expected 0 size when price missing, got %v", got)
	}
}

func TestSizeCappedByInventoryOnSellLeg(t *testing.T) {
	legs := []domain.OppLeg{
		sellLeg("a", 0.5, 100),
		sellLeg("b", 0.5, 100),
	}
	inv := func(tokenID string) float64 {
		if tokenID == "a" {
			return 12
		}
		return 100
	}
	size := Size(legs, 0, inv, 30)
	if size != 12 {
		t.Fatalf("expected sell size capped by inventory to 12, got %v", size)
	}
}

func TestSizeBelowOneContractSkipped(t *testing.T) {
	legs := []domain.OppLeg{
		buyLeg("a", 0.5, 0.4),
		buyLeg("b", 0.5, 0.4),
	}
	if got := Size(legs, 1000, nil, 30); got != 0 {
		t.Fatalf("expected 0 for sub-1-contract size, got %v", got)
	}
}

func TestRequiredCashOnlySumsBuyLegs(t *testing.T) {
	legs := []domain.OppLeg{
		buyLeg("a", 0.5, 50),
		sellLeg("b", 0.5, 50),
	}
	if got := RequiredCash(legs, 10); got != 5 {
		t.Fatalf("expected required cash to count only BUY legs, got %v", got)
	}
}
