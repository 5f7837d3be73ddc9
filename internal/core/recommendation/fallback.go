package recommendation

import "strings"

// catalogItem 備援目錄中的商品
type catalogItem struct {
	name        string
	brand       string
	category    string
	price       string
	description string
	ingredients string
	stores      string
	link        string
}

func (i catalogItem) candidate() ProductCandidate {
	return ProductCandidate{
		Name:         strPtr(i.name),
		Brand:        strPtr(i.brand),
		Category:     strPtr(i.category),
		Price:        strPtr(i.price),
		Description:  strPtr(i.description),
		Ingredients:  strPtr(i.ingredients),
		StoreLink:    strPtr(i.link),
		Availability: strPtr(i.stores),
	}
}

var baseCatalog = []catalogItem{
	{
		name:        "CeraVe Hydrating Facial Cleanser",
		brand:       "CeraVe",
		category:    CategoryCleanser,
		price:       "$12-16",
		description: "Gentle, non-foaming cleanser with ceramides and hyaluronic acid",
		ingredients: "Ceramides, Hyaluronic Acid",
		stores:      "Amazon, Target, CVS",
		link:        "https://www.amazon.com/s?k=CeraVe+Hydrating+Facial+Cleanser",
	},
	{
		name:        "The Ordinary Niacinamide 10% + Zinc 1%",
		brand:       "The Ordinary",
		category:    CategorySerum,
		price:       "$6-8",
		description: "High-strength vitamin and mineral blemish formula",
		ingredients: "Niacinamide, Zinc",
		stores:      "Sephora, Ulta, Amazon",
		link:        "https://www.sephora.com/search?keyword=The+Ordinary+Niacinamide",
	},
	{
		name:        "Neutrogena Hydro Boost Water Gel",
		brand:       "Neutrogena",
		category:    CategoryMoisturizer,
		price:       "$15-20",
		description: "Lightweight gel moisturizer with hyaluronic acid",
		ingredients: "Hyaluronic Acid, Glycerin",
		stores:      "Target, Amazon, Walmart",
		link:        "https://www.target.com/s?searchTerm=Neutrogena+Hydro+Boost",
	},
}

var skinTypeCatalog = map[string][]catalogItem{
	"oily": {
		{
			name:        "Paula's Choice Skin Perfecting 2% BHA Liquid Exfoliant",
			brand:       "Paula's Choice",
			category:    CategoryTreatment,
			price:       "$13-35",
			description: "Leave-on exfoliant that unclogs pores and smooths texture",
			ingredients: "Salicylic Acid, BHA",
			stores:      "Sephora, Ulta, Amazon",
			link:        "https://www.ulta.com/search?q=Paulas+Choice+BHA+Liquid+Exfoliant",
		},
	},
	"dry": {
		{
			name:        "CeraVe Moisturizing Cream",
			brand:       "CeraVe",
			category:    CategoryMoisturizer,
			price:       "$17-20",
			description: "Rich barrier cream for dry skin with ceramides",
			ingredients: "Ceramides, Hyaluronic Acid, Glycerin",
			stores:      "Target, CVS, Walmart",
			link:        "https://www.walmart.com/search?q=CeraVe+Moisturizing+Cream",
		},
	},
	"sensitive": {
		{
			name:        "La Roche-Posay Cicaplast Baume B5",
			brand:       "La Roche-Posay",
			category:    CategoryTreatment,
			price:       "$15-18",
			description: "Soothing multi-purpose balm for irritated skin",
			ingredients: "Allantoin, Glycerin",
			stores:      "Ulta, CVS, Amazon",
			link:        "https://www.cvs.com/search?searchTerm=Cicaplast+Baume+B5",
		},
	},
	"combination": {
		{
			name:        "Clinique Dramatically Different Moisturizing Gel",
			brand:       "Clinique",
			category:    CategoryMoisturizer,
			price:       "$30-35",
			description: "Oil-free gel that balances combination skin",
			ingredients: "Glycerin",
			stores:      "Sephora, Ulta, Nordstrom",
			link:        "https://www.sephora.com/search?keyword=Clinique+Moisturizing+Gel",
		},
	},
}

var sunscreenItem = catalogItem{
	name:        "La Roche-Posay Anthelios Melt-in Milk Sunscreen SPF 60",
	brand:       "La Roche-Posay",
	category:    CategorySunscreen,
	price:       "$30-37",
	description: "Broad-spectrum sunscreen suitable for face and body",
	ingredients: "Vitamin E",
	stores:      "Target, Ulta, Amazon",
	link:        "https://www.target.com/s?searchTerm=Anthelios+Melt-in+Milk",
}

// FallbackCatalog 依膚質返回固定的備援商品
func FallbackCatalog(skinType string) []ProductCandidate {
	items := append([]catalogItem(nil), baseCatalog...)
	items = append(items, skinTypeCatalog[strings.ToLower(strings.TrimSpace(skinType))]...)
	items = append(items, sunscreenItem)

	out := make([]ProductCandidate, 0, len(items))
	for _, i := range items {
		out = append(out, i.candidate())
	}
	return out
}
