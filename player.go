package main

import "math"

const (
	Gravity      = 900.0  // units/s²
	MoveSpeed    = 160.0  // units/s
	JumpVelocity = -420.0 // units/s, negative is up
	WorldWidth   = 800.0
	WorldHeight  = 600.0
	PlayerWidth  = 32.0
	PlayerHeight = 48.0
)

// Character variants. Fire dies in water, water dies in lava.
const (
	CharFire  = "fire"
	CharWater = "water"
)

// Player is the authoritative per-connection entity inside a room.
// Position is top-left anchored in world units.
type Player struct {
	ID             string
	Character      string
	X, Y           float64
	VX, VY         float64
	OnGround       bool
	TouchingButton bool
	FacingRight    bool
	IsMoving       bool
}

// InputState is the last input reported by a client. Last write wins,
// re-zeroed on every level reset.
type InputState struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Jump  bool `json:"jump"`
}

// SpawnPosition returns the fixed spawn point for a character.
func SpawnPosition(character string) (float64, float64) {
	if character == CharFire {
		return 64, 500
	}
	return 736, 500
}

// NewPlayer creates a player at its character's spawn.
func NewPlayer(id, character string) *Player {
	x, y := SpawnPosition(character)
	return &Player{
		ID:          id,
		Character:   character,
		X:           x,
		Y:           y,
		FacingRight: true,
	}
}

// buttonTile is the trigger code this character can press.
func (p *Player) buttonTile() int {
	if p.Character == CharFire {
		return TileButtonRed
	}
	return TileButtonBlue
}

// hazardTile is the tile code that kills this character.
func (p *Player) hazardTile() int {
	if p.Character == CharFire {
		return TileWater
	}
	return TileLava
}

// exitTile is the exit this character must reach.
func (p *Player) exitTile() int {
	if p.Character == CharFire {
		return TileExitFire
	}
	return TileExitWater
}

// Step advances the player one tick. Pure function of player, input and dt;
// it never reads the clock.
func (p *Player) Step(input InputState, dt float64) {
	// Horizontal intent. Left wins when both keys are held.
	if input.Left {
		p.VX = -MoveSpeed
		p.FacingRight = false
		p.IsMoving = true
	} else if input.Right {
		p.VX = MoveSpeed
		p.FacingRight = true
		p.IsMoving = true
	} else {
		p.VX = 0
		p.IsMoving = false
	}

	// Gravity applies every tick, even while grounded. The vertical
	// collision pass below re-grounds the player each frame.
	p.VY += Gravity * dt

	if input.Jump && p.OnGround {
		p.VY = JumpVelocity
		p.OnGround = false
	}

	p.X += p.VX * dt
	p.Y += p.VY * dt

	// Horizontal collision: full revert of this tick's displacement.
	if OverlapsAny(p.X, p.Y, PlayerWidth, PlayerHeight, TilePlatform) {
		p.X -= p.VX * dt
		p.VX = 0
	}

	// Vertical collision, direction dependent. A player at exactly VY == 0
	// skips the check this tick; gravity re-applies next tick.
	if p.VY > 0 {
		if OverlapsAny(p.X, p.Y, PlayerWidth, PlayerHeight, TilePlatform) {
			p.Y = math.Floor(p.Y/TileSize) * TileSize
			p.VY = 0
			p.OnGround = true
		} else {
			p.OnGround = false
		}
	} else if p.VY < 0 {
		if OverlapsAny(p.X, p.Y, PlayerWidth, PlayerHeight, TilePlatform) {
			p.Y = math.Ceil((p.Y+PlayerHeight)/TileSize)*TileSize - PlayerHeight
			p.VY = 0
		}
	}

	// World bounds. No upper clamp on y: the solid floor row keeps players
	// inside, and hazards own anything below it.
	p.X = Clamp(p.X, 0, WorldWidth-PlayerWidth)
	if p.Y > WorldHeight {
		p.Y = WorldHeight - PlayerHeight
	}

	p.TouchingButton = OverlapsAny(p.X, p.Y, PlayerWidth, PlayerHeight, p.buttonTile())
}

// Respawn puts the player back at its spawn with zeroed motion state.
func (p *Player) Respawn() {
	p.X, p.Y = SpawnPosition(p.Character)
	p.VX = 0
	p.VY = 0
	p.OnGround = false
	p.TouchingButton = false
	p.FacingRight = true
	p.IsMoving = false
}

// InHazard reports whether the player's box overlaps its lethal tile.
func (p *Player) InHazard() bool {
	return OverlapsAny(p.X, p.Y, PlayerWidth, PlayerHeight, p.hazardTile())
}

// AtExit reports whether the player's box overlaps its exit tile.
func (p *Player) AtExit() bool {
	return OverlapsAny(p.X, p.Y, PlayerWidth, PlayerHeight, p.exitTile())
}

// ToState converts to protocol state.
func (p *Player) ToState() PlayerState {
	return PlayerState{
		ID:             p.ID,
		Character:      p.Character,
		X:              p.X,
		Y:              p.Y,
		VX:             p.VX,
		VY:             p.VY,
		OnGround:       p.OnGround,
		TouchingButton: p.TouchingButton,
		FacingRight:    p.FacingRight,
		IsMoving:       p.IsMoving,
	}
}
