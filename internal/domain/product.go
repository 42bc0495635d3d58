package domain

// ProductDimensions is the shipping weight (grams) and box size (centimetres)
// recorded for a product. Zero means unknown.
type ProductDimensions struct {
	ProductID string `json:"product_id"`
	Weight    int    `json:"weight"`
	Length    int    `json:"length"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}
