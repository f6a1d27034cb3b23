package browser

import (
	"context"
	"fmt"

	"github.com/hazyhaar/lockhunt/hunt"
)

// listingsJS serialises every result card on the current page in one
// round trip. Missing fields become empty strings here; normalisation to
// "N/A" happens on the Go side.
const listingsJS = `() => {
	const text = (root, sel) => {
		const el = root.querySelector(sel);
		return el ? el.innerText.trim() : "";
	};
	const attr = (root, sel, name) => {
		const el = root.querySelector(sel);
		return el ? (el.getAttribute(name) || "") : "";
	};
	return [...document.querySelectorAll("ul.srp-results > li.s-item")].map((item) => ({
		title: text(item, ".s-item__title"),
		url: attr(item, "a.s-item__link", "href"),
		price: text(item, ".s-item__price"),
		condition: text(item, ".s-item__condition"),
		shipping: text(item, ".s-item__shipping"),
		seller: text(item, ".s-item__seller-info-text"),
	}));
}`

// detailsJS pulls the first matching description container's HTML plus
// the full page text as a fallback.
const detailsJS = `() => {
	const selectors = ["#viTabs_0_is > div > div", ".vi-item-condition", "#viTabs_0_is", ".notranslate"];
	let html = "";
	for (const sel of selectors) {
		const el = document.querySelector(sel);
		if (el) { html = el.innerHTML; break; }
	}
	return { html, fullText: document.body ? document.body.innerText : "" };
}`

// ExtractListings returns the raw listings on the current results page.
// Listings without a title are dropped; every other missing field is
// substituted with "N/A".
func (s *Session) ExtractListings(ctx context.Context) ([]hunt.Listing, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	res, err := s.page.Context(opCtx).Eval(listingsJS)
	if err != nil {
		return nil, fmt.Errorf("browser: extract listings: %w", err)
	}

	var listings []hunt.Listing
	for _, item := range res.Value.Arr() {
		title := item.Get("title").Str()
		if title == "" {
			continue
		}
		listings = append(listings, hunt.Listing{
			Title:     title,
			URL:       item.Get("url").Str(),
			Price:     orNA(item.Get("price").Str()),
			Condition: orNA(item.Get("condition").Str()),
			Shipping:  item.Get("shipping").Str(),
			Seller:    orNA(item.Get("seller").Str()),
		})
	}
	return listings, nil
}

// ExtractDetails navigates to a listing's item page and returns its
// cleaned description plus the full page text.
func (s *Session) ExtractDetails(ctx context.Context, pageURL string) (string, string, error) {
	if err := s.Navigate(ctx, pageURL); err != nil {
		return "", "", err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	res, err := s.page.Context(opCtx).Eval(detailsJS)
	if err != nil {
		return "", "", fmt.Errorf("browser: extract details: %w", err)
	}

	description := s.cleanDescription(res.Value.Get("html").Str())
	fullText := collapseWhitespace(res.Value.Get("fullText").Str())
	return description, fullText, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
