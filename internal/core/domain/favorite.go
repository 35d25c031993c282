package domain

import "time"

type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// FavoriteProduct is the product snapshot stored with a favorite so it can
// be displayed without a catalog fetch.
type FavoriteProduct struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Title    string `json:"title"`
	Price    Money  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Favorite is one membership row, unique per (UserID, Product.ID).
type Favorite struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Product   FavoriteProduct `json:"product"`
	CreatedAt time.Time       `json:"createdAt"`
}

type FavoriteState string

const (
	FavoriteUnknown      FavoriteState = "unknown"
	FavoriteChecking     FavoriteState = "checking"
	FavoriteNotFavorited FavoriteState = "not_favorited"
	FavoriteFavorited    FavoriteState = "favorited"
	FavoriteError        FavoriteState = "error"
)

// Settled reports whether the state is a confirmed membership answer.
func (s FavoriteState) Settled() bool {
	return s == FavoriteFavorited || s == FavoriteNotFavorited
}
