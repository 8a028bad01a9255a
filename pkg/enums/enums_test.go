package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("paid")
	if err != nil || got != OrderStatusPaid {
		t.Fatalf("expected paid, got %q err=%v", got, err)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestMappingSourceApproximation(t *testing.T) {
	if !MappingSourceAnyVariant.IsApproximate() {
		t.Fatal("any_variant must be flagged approximate")
	}
	for _, src := range []LineItemMappingSource{MappingSourceCart, MappingSourceMetadata, MappingSourceNameMatch} {
		if src.IsApproximate() {
			t.Fatalf("%s should not be approximate", src)
		}
	}
}

func TestParseCurrencyIsCaseInsensitive(t *testing.T) {
	got, err := ParseCurrency(" USD ")
	if err != nil || got != CurrencyUSD {
		t.Fatalf("expected usd, got %q err=%v", got, err)
	}
	if _, err := ParseCurrency("eur"); err == nil {
		t.Fatal("expected eur to be rejected")
	}
}

func TestOutboxEventAggregates(t *testing.T) {
	cases := map[OutboxEventType]OutboxAggregateType{
		EventOrderPaid:     AggregateOrder,
		EventPaymentFailed: AggregateCheckoutSession,
	}
	for event, want := range cases {
		got, ok := event.Aggregate()
		if !ok || got != want {
			t.Fatalf("%s: expected aggregate %s, got %q ok=%v", event, want, got, ok)
		}
		if !event.IsValid() || !got.IsValid() {
			t.Fatalf("%s: expected valid event and aggregate", event)
		}
	}
	if OutboxEventType("order_created").IsValid() {
		t.Fatal("expected unknown event type to be invalid")
	}
	if OutboxAggregateType("store").IsValid() {
		t.Fatal("expected unknown aggregate to be invalid")
	}
}
