// Package order builds WhatsApp deep links for cart checkout. The
// storefront opens the link in a new browser context; there is no
// delivery confirmation, the message itself is the order.
package order

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultPhone is used when no catering phone number is configured.
const DefaultPhone = ""

// MaxMessageLength caps the pre-encoded message; WhatsApp truncates
// far later, this keeps the URL manageable for mobile browsers.
const MaxMessageLength = 4000

var (
	ErrEmptyCart = errors.New("order: cart is empty")
	ErrNoPhone   = errors.New("order: no catering phone number configured")
)

// Line is one cart entry as submitted by the storefront.
type Line struct {
	RestaurantID   string   `json:"restaurantId"`
	RestaurantName string   `json:"restaurantName"`
	ItemName       string   `json:"itemName"`
	Quantity       int      `json:"quantity"`
	Price          float64  `json:"price"`
	WeightGrams    *float64 `json:"weight,omitempty"`
}

// Cart is the full checkout payload.
type Cart struct {
	Lines        []Line `json:"lines"`
	CustomerName string `json:"customerName,omitempty"`
	YachtName    string `json:"yachtName,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Builder turns carts into wa.me deep links.
type Builder struct {
	phone string
}

// NewBuilder accepts the catering WhatsApp number in international
// format without the leading plus, e.g. "30694xxxxxxx".
func NewBuilder(phone string) *Builder {
	return &Builder{phone: strings.TrimPrefix(strings.TrimSpace(phone), "+")}
}

// BuildLink renders the cart into a percent-encoded wa.me URL.
func (b *Builder) BuildLink(cart Cart) (string, error) {
	if b.phone == "" {
		return "", ErrNoPhone
	}
	message, err := BuildMessage(cart)
	if err != nil {
		return "", err
	}
	return "https://wa.me/" + b.phone + "?text=" + url.QueryEscape(message), nil
}

// BuildMessage renders the plain-text order message: lines grouped by
// restaurant in first-occurrence order, itemized with quantity, weight
// and line total, then a grand total.
func BuildMessage(cart Cart) (string, error) {
	valid := make([]Line, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		if line.Quantity > 0 && strings.TrimSpace(line.ItemName) != "" {
			valid = append(valid, line)
		}
	}
	if len(valid) == 0 {
		return "", ErrEmptyCart
	}

	groups := groupByRestaurant(valid)

	var sb strings.Builder
	sb.WriteString("New catering order")
	if yacht := strings.TrimSpace(cart.YachtName); yacht != "" {
		sb.WriteString(" for ")
		sb.WriteString(yacht)
	}
	sb.WriteString("\n")
	if name := strings.TrimSpace(cart.CustomerName); name != "" {
		fmt.Fprintf(&sb, "Contact: %s\n", name)
	}

	total := 0.0
	for _, group := range groups {
		sb.WriteString("\n")
		sb.WriteString(group.name)
		sb.WriteString("\n")
		for _, line := range group.lines {
			lineTotal := float64(line.Quantity) * line.Price
			total += lineTotal
			fmt.Fprintf(&sb, "  %dx %s", line.Quantity, strings.TrimSpace(line.ItemName))
			if line.WeightGrams != nil && *line.WeightGrams > 0 {
				fmt.Fprintf(&sb, " (%sg)", trimFloat(*line.WeightGrams))
			}
			fmt.Fprintf(&sb, " - €%s\n", trimFloat(lineTotal))
		}
	}
	fmt.Fprintf(&sb, "\nTotal: €%s\n", trimFloat(total))
	if notes := strings.TrimSpace(cart.Notes); notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", notes)
	}

	message := sb.String()
	if utf8.RuneCountInString(message) > MaxMessageLength {
		runes := []rune(message)
		message = string(runes[:MaxMessageLength])
	}
	return message, nil
}

type restaurantGroup struct {
	name  string
	lines []Line
}

func groupByRestaurant(lines []Line) []restaurantGroup {
	index := make(map[string]int)
	groups := make([]restaurantGroup, 0, 4)
	for _, line := range lines {
		key := line.RestaurantID
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(line.RestaurantName))
		}
		at, ok := index[key]
		if !ok {
			name := strings.TrimSpace(line.RestaurantName)
			if name == "" {
				name = "Other items"
			}
			groups = append(groups, restaurantGroup{name: name})
			at = len(groups) - 1
			index[key] = at
		}
		groups[at].lines = append(groups[at].lines, line)
	}
	for i := range groups {
		sort.SliceStable(groups[i].lines, func(a, b int) bool {
			return groups[i].lines[a].ItemName < groups[i].lines[b].ItemName
		})
	}
	return groups
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
