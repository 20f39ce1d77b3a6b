// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"time"
)

// StoreID identifies one physical rack.
type StoreID int

// BinID is the packed integer id of a bin, see bincode.
type BinID int

func (s StoreID) String() string { return fmt.Sprintf("store-%d", int(s)) }

// OccupiedLocation reports Count bottles at (Column, Row) of a rack.
// Rows 0 and 16 are the overflow shelves.
type OccupiedLocation struct {
	ID     int `json:"id,omitempty"`
	Column int `json:"binX"`
	Row    int `json:"binY"`
	Count  int `json:"count"`
}

// DisplayCell is one tile of the rendered rack.
type DisplayCell struct {
	ID       BinID `json:"id"`
	Count    int   `json:"count"`
	IsDouble bool  `json:"isDouble"`
	IsRow    bool  `json:"isRow"`
}

type StoreBottle struct {
	BottleID int    `json:"bottleId"`
	WineID   int    `json:"wineId,omitempty"`
	Vineyard string `json:"vineyard"`
	Label    string `json:"label"`
	Varietal string `json:"varietal"`
	Vintage  int    `json:"vintage"`
	BinX     int    `json:"binX"`
	BinY     int    `json:"binY"`
	Depth    int    `json:"depth"`
}

type Varietal struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type NewWineRequest struct {
	Varietal string `json:"varietal"`
	Vineyard string `json:"vineyard"`
	Label    string `json:"label"`
	Vintage  int    `json:"vintage"`
	Notes    string `json:"notes"`
}

type Wine struct {
	NewWineRequest
	ID    int `json:"id"`
	Count int `json:"count"`
}

type PatchWineRequest struct {
	Varietal *string `json:"varietal,omitempty"`
	Vineyard *string `json:"vineyard,omitempty"`
	Label    *string `json:"label,omitempty"`
	Vintage  *int    `json:"vintage,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

type NewBottleRequest struct {
	WineID    int `json:"wineId"`
	StorageID int `json:"storageId"`
	BinX      int `json:"binX"`
	BinY      int `json:"binY"`
	Depth     int `json:"depth"`
}

type Bottle struct {
	NewBottleRequest
	ID                 int       `json:"id"`
	StorageDescription string    `json:"storageDescription,omitempty"`
	CreatedDate        time.Time `json:"createdDate"`
}

type PatchBottleRequest struct {
	WineID    *int  `json:"wineId,omitempty"`
	StorageID *int  `json:"storageId,omitempty"`
	BinX      *int  `json:"binX,omitempty"`
	BinY      *int  `json:"binY,omitempty"`
	Depth     *int  `json:"depth,omitempty"`
	Consumed  *bool `json:"consumed,omitempty"`
}

type WineFilter struct {
	ID       int    `json:"id,omitempty"`
	Varietal string `json:"varietal,omitempty"`
	Vineyard string `json:"vineyard,omitempty"`
	ShowAll  bool   `json:"showAll,omitempty"`
}

type SortModel struct {
	Field string `json:"field"`
	Sort  string `json:"sort"` // asc|desc
}

type WineQuery struct {
	Page     int
	PageSize int
	Sort     *SortModel
	Filter   *WineFilter
}

type PagedResponse[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
}

type UserFilter struct {
	Username string `json:"username,omitempty"`
}

type UserQuery struct {
	Page     int
	PageSize int
	Sort     *SortModel
	Filter   *UserFilter
}

type User struct {
	ID       int       `json:"id"`
	Username string    `json:"username"`
	LastOn   time.Time `json:"lastOn"`
	IsAdmin  bool      `json:"isAdmin"`
}

// UpdateUserRequest creates or patches a user; nil fields are left alone.
type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	IsAdmin  *bool   `json:"isAdmin,omitempty"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type UserInfo struct {
	UserID   int    `json:"userId"`
	UserName string `json:"userName"`
	IsAdmin  bool   `json:"isAdmin"`
}
