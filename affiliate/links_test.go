package affiliate

import (
	"reflect"
	"testing"
)

func TestFindLinks(t *testing.T) {
	text := "Deal: https://shopee.vn/product/1/2, also (https://shp.ee/abc). See http://example.com!"

	want := []string{"https://shopee.vn/product/1/2", "https://shp.ee/abc", "http://example.com"}
	if got := FindLinks(text); !reflect.DeepEqual(got, want) {
		t.Fatalf("FindLinks() = %v, want %v", got, want)
	}

	if got := FindLinks("no links here"); len(got) != 0 {
		t.Fatalf("expected no links, got %v", got)
	}
}

func TestIsShopee(t *testing.T) {
	tests := []struct {
		url   string
		shop  bool
		short bool
	}{
		{"https://shopee.vn/product/1/2", true, false},
		{"https://www.shopee.co.id/item", true, false},
		{"https://shopee.com.my/x", true, false},
		{"https://s.shopee.vn/AbC", true, true},
		{"https://shp.ee/xyz", true, true},
		{"https://notshopee.vn/x", false, false},
		{"https://shopee.vn.evil.com/x", false, false},
		{"https://lazada.vn/x", false, false},
		{"ftp://shopee.vn/x", false, false},
		{"::not a url", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsShopee(tt.url); got != tt.shop {
				t.Errorf("IsShopee = %v, want %v", got, tt.shop)
			}
			if got := IsShortLink(tt.url); got != tt.short {
				t.Errorf("IsShortLink = %v, want %v", got, tt.short)
			}
		})
	}
}
