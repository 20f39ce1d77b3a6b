package layout

import "github.com/mohammed-shakir/cellar-rack/internal/core/model"

type Summary struct {
	Cells        int `json:"cells"`
	OccupiedBins int `json:"occupiedBins"`
	GridBottles  int `json:"gridBottles"`
	ShelfBottles int `json:"shelfBottles"`
	TotalBottles int `json:"totalBottles"`
}

func Summarize(cells []model.DisplayCell) Summary {
	s := Summary{Cells: len(cells)}
	for _, c := range cells {
		s.TotalBottles += c.Count
		if c.IsRow {
			s.ShelfBottles += c.Count
			continue
		}
		s.GridBottles += c.Count
		if c.Count != 0 {
			s.OccupiedBins++
		}
	}
	return s
}
