package order

import (
	"net/url"
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func sampleCart() Cart {
	return Cart{
		YachtName:    "M/Y Calypso",
		CustomerName: "Dana",
		Lines: []Line{
			{RestaurantID: "rest_1", RestaurantName: "Blue Anchor", ItemName: "Ceviche", Quantity: 2, Price: 18.5, WeightGrams: floatPtr(250)},
			{RestaurantID: "rest_2", RestaurantName: "Harbor Grill", ItemName: "Ribeye", Quantity: 1, Price: 42},
			{RestaurantID: "rest_1", RestaurantName: "Blue Anchor", ItemName: "Baklava", Quantity: 3, Price: 6},
		},
	}
}

func TestBuildMessageGroupsAndTotals(t *testing.T) {
	message, err := BuildMessage(sampleCart())
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}

	anchorAt := strings.Index(message, "Blue Anchor")
	grillAt := strings.Index(message, "Harbor Grill")
	if anchorAt == -1 || grillAt == -1 {
		t.Fatalf("restaurant headers missing:\n%s", message)
	}
	if anchorAt > grillAt {
		t.Fatal("groups must appear in first-occurrence order")
	}
	for _, want := range []string{
		"New catering order for M/Y Calypso",
		"Contact: Dana",
		"2x Ceviche (250g) - €37",
		"3x Baklava - €18",
		"1x Ribeye - €42",
		"Total: €97",
	} {
		if !strings.Contains(message, want) {
			t.Fatalf("message missing %q:\n%s", want, message)
		}
	}
}

func TestBuildMessageSkipsInvalidLines(t *testing.T) {
	cart := Cart{Lines: []Line{
		{RestaurantName: "Blue Anchor", ItemName: "Ceviche", Quantity: 1, Price: 18},
		{RestaurantName: "Blue Anchor", ItemName: "", Quantity: 2, Price: 9},
		{RestaurantName: "Blue Anchor", ItemName: "Baklava", Quantity: 0, Price: 6},
	}}
	message, err := BuildMessage(cart)
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	if strings.Contains(message, "Baklava") {
		t.Fatal("zero-quantity line must be skipped")
	}
	if !strings.Contains(message, "Total: €18") {
		t.Fatalf("total should only count valid lines:\n%s", message)
	}
}

func TestBuildMessageEmptyCart(t *testing.T) {
	if _, err := BuildMessage(Cart{}); err != ErrEmptyCart {
		t.Fatalf("err = %v, want ErrEmptyCart", err)
	}
	cart := Cart{Lines: []Line{{ItemName: "Ceviche", Quantity: 0}}}
	if _, err := BuildMessage(cart); err != ErrEmptyCart {
		t.Fatalf("err = %v, want ErrEmptyCart", err)
	}
}

func TestBuildLink(t *testing.T) {
	b := NewBuilder("+306941234567")
	link, err := b.BuildLink(sampleCart())
	if err != nil {
		t.Fatalf("BuildLink: %v", err)
	}
	if !strings.HasPrefix(link, "https://wa.me/306941234567?text=") {
		t.Fatalf("unexpected link prefix: %s", link)
	}

	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("link not a valid URL: %v", err)
	}
	text := parsed.Query().Get("text")
	if !strings.Contains(text, "Total: €97") {
		t.Fatalf("decoded text missing total:\n%s", text)
	}
	if strings.ContainsAny(link[strings.Index(link, "?text=")+6:], " \n€") {
		t.Fatal("message must be percent-encoded in the link")
	}
}

func TestBuildLinkNoPhone(t *testing.T) {
	b := NewBuilder("  ")
	if _, err := b.BuildLink(sampleCart()); err != ErrNoPhone {
		t.Fatalf("err = %v, want ErrNoPhone", err)
	}
}
