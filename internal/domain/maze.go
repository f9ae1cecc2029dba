package domain

// MazeSize holds the grid dimensions of a maze.
type MazeSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Position is a cell coordinate; (0,0) is the top-left corner.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Walls are the four independent wall flags of a cell.
type Walls struct {
	Top    bool `json:"top"`
	Right  bool `json:"right"`
	Bottom bool `json:"bottom"`
	Left   bool `json:"left"`
}

// Cell is one grid cell of the maze matrix.
type Cell struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Walls Walls `json:"walls"`
}

// Item is a collectible placed inside a maze.
type Item struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Type   string `json:"type"`
	Picked bool   `json:"picked"`
}

// Maze is a generated maze owned by a single user. The matrix is indexed
// as Matrix[y][x]. StartTime/EndTime/TimeToFinish are epoch milliseconds.
type Maze struct {
	MazeID         string   `json:"mazeId"`
	UserID         string   `json:"userId"`
	Size           MazeSize `json:"mazeSize"`
	Matrix         [][]Cell `json:"mazeMatrix"`
	WallColor      string   `json:"wallColor"`
	FloorColor     string   `json:"floorColor"`
	PlayerColor    string   `json:"playerColor"`
	PortalColor    string   `json:"portalColor"`
	FinishPosition Position `json:"finishPosition"`
	PlayerPosition Position `json:"playerPosition"`
	Item           *Item    `json:"item"`
	StartTime      int64    `json:"startTime"`
	EndTime        int64    `json:"endTime,omitempty"`
	NumberOfMoves  int      `json:"numberOfMoves"`
	Passed         bool     `json:"passed"`
	TimeToFinish   int64    `json:"timeToFinish,omitempty"`
}

// Contains reports whether p lies inside the maze bounds.
func (m *Maze) Contains(p Position) bool {
	return p.X >= 0 && p.X < m.Size.Width && p.Y >= 0 && p.Y < m.Size.Height
}
