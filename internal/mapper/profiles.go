package mapper

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ghalamif/HapticFlow/internal/domain"
	"github.com/ghalamif/HapticFlow/internal/haptics"
)

const (
	ProfilePistolWhip = "pistolwhip"
	ProfileGTAV       = "gtav"
	ProfileAlyx       = "alyx"
	ProfileScreen     = "screen"
)

const latchLowHealth = "low_health"

var profileBuilders = map[string]func(cfg EventsConfig) Profile{
	ProfilePistolWhip: pistolWhipProfile,
	ProfileGTAV:       gtavProfile,
	ProfileAlyx:       alyxProfile,
	ProfileScreen:     screenProfile,
}

// Profiles lists the built-in event tables.
func Profiles() []string {
	return []string{ProfilePistolWhip, ProfileGTAV, ProfileAlyx, ProfileScreen}
}

type zones = []haptics.Zone

func sides(left, right zones) map[string][]haptics.Zone {
	return map[string][]haptics.Zone{"left": left, "right": right}
}

func pistolWhipProfile(EventsConfig) Profile {
	upper := sides(
		zones{haptics.FrontUpperLeft, haptics.BackUpperLeft},
		zones{haptics.FrontUpperRight, haptics.BackUpperRight},
	)
	return Profile{
		Name:        ProfilePistolWhip,
		ForwardCmd:  "pistolwhip_event",
		DefaultHand: "right",
		Rules: map[string]EventRule{
			"gun_fire":     {HandZones: upper, Zones: upper["right"], Speed: 5, Priority: 1},
			"shotgun_fire": {HandZones: sides(zones{haptics.Left}, zones{haptics.Right}), Zones: zones{haptics.Right}, Speed: 8, Priority: 2},
			"melee_hit":    {HandZones: upper, Zones: upper["right"], Speed: 6, Priority: 2},
			"reload_hip": {
				HandZones: sides(zones{haptics.FrontLowerLeft}, zones{haptics.FrontLowerRight}),
				Zones:     zones{haptics.FrontLowerRight}, Speed: 4,
			},
			"reload_shoulder": {
				HandZones: sides(zones{haptics.BackUpperLeft}, zones{haptics.BackUpperRight}),
				Zones:     zones{haptics.BackUpperRight}, Speed: 4,
			},
			"player_hit": {Zones: zones{haptics.FrontUpperLeft, haptics.FrontUpperRight}, Speed: 7, Priority: 3},
			"death":      {Zones: zones{haptics.All}, Speed: 10, Priority: 5},
			"low_health": {Zones: zones{haptics.FrontLowerLeft, haptics.FrontLowerRight}, Speed: 3, Priority: 4, Sets: latchLowHealth},
			"healing":    {Zones: zones{haptics.Lower}, Speed: 4, Priority: 1, Clears: []string{latchLowHealth}},
			"empty_gun_fire": {
				HandZones: sides(zones{haptics.FrontUpperLeft}, zones{haptics.FrontUpperRight}),
				Zones:     zones{haptics.FrontUpperRight}, Speed: 2,
			},
		},
	}
}

// GTADamageSpeed scales raw damage to a speed: light hits start at 3,
// heavy hits reach 10.
func GTADamageSpeed(damage float64) int {
	switch {
	case damage <= 0 || math.IsNaN(damage):
		return 0
	case damage < 25:
		return int(math.Max(3, math.Floor(damage/5)))
	case damage < 50:
		return 5 + int(math.Floor((damage-25)/12.5))
	default:
		return int(math.Min(10, 7+math.Floor((damage-50)/16.67)))
	}
}

func gtavProfile(EventsConfig) Profile {
	return Profile{
		Name:       ProfileGTAV,
		ForwardCmd: "gtav_event",
		Rules: map[string]EventRule{
			"player_damage": {
				Zones: zones{haptics.FrontUpperLeft, haptics.FrontUpperRight},
				Angle: AngleClockwise,
				SpeedFn: func(e *domain.GameEvent) int {
					return GTADamageSpeed(e.Damage)
				},
				Priority: 3,
			},
			"player_death": {Zones: zones{haptics.All}, Speed: 10, Priority: 5},
		},
	}
}

func alyxHurtSpeed(e *domain.GameEvent) int {
	switch {
	case e.Health < 30:
		return 8
	case e.Health < 60:
		return 6
	default:
		return 5
	}
}

func alyxShootSpeed(e *domain.GameEvent) int {
	w := strings.ToLower(e.Weapon)
	switch {
	case strings.Contains(w, "shotgun"):
		return 7
	case strings.Contains(w, "rapidfire"), strings.Contains(w, "smg"):
		return 4
	default:
		return 5
	}
}

// alyxLowHealth is the PlayerHealth level at or below which the low health
// latch is raised.
const alyxLowHealth = 30

// Alyx reports angles counter-clockwise (90 = left). PlayerHealth is routed
// to PlayerHealthLow / PlayerHealthOk around alyxLowHealth.
func alyxProfile(EventsConfig) Profile {
	frontUpper := zones{haptics.FrontUpperLeft, haptics.FrontUpperRight}
	frontLower := zones{haptics.FrontLowerLeft, haptics.FrontLowerRight}
	backUpper := zones{haptics.BackUpperLeft, haptics.BackUpperRight}
	handFront := sides(
		zones{haptics.FrontUpperLeft, haptics.FrontLowerLeft},
		zones{haptics.FrontUpperRight, haptics.FrontLowerRight},
	)
	backpack := sides(zones{haptics.BackUpperLeft}, zones{haptics.BackUpperRight})

	return Profile{
		Name:        ProfileAlyx,
		ForwardCmd:  "alyx_event",
		DefaultHand: "",
		Rules: map[string]EventRule{
			"PlayerHurt":        {Zones: frontUpper, Angle: AngleCounterClockwise, SpeedFn: alyxHurtSpeed, Priority: 3},
			"PlayerDeath":       {Zones: zones{haptics.All}, Speed: 10, Priority: 5},
			"PlayerShootWeapon": {Zones: frontUpper, SpeedFn: alyxShootSpeed, Cooldown: 80 * time.Millisecond, Priority: 1},
			"PlayerHealthLow": {
				Zones: zones{haptics.FrontUpperLeft, haptics.FrontLowerLeft},
				Speed: 3, Priority: 4, Sets: latchLowHealth,
			},
			"PlayerHealthOk":           {Clears: []string{latchLowHealth}},
			"PlayerHeal":               {Zones: zones{haptics.AllFront}, Speed: 2, Clears: []string{latchLowHealth}},
			"PlayerUsingHealthstation": {Zones: zones{haptics.AllFront}, Speed: 2, Clears: []string{latchLowHealth}},
			"PrimaryHandChanged":       {SetsPrimary: true},
			"PlayerGrabbityPull":       {HandZones: handFront, Zones: handFront["right"], Speed: 3, PrimaryRelative: true},
			"GrabbityGloveCatch":       {HandZones: handFront, Zones: handFront["right"], Speed: 4, PrimaryRelative: true},
			"PlayerGrabbityLockStart":  {HandZones: handFront, Zones: handFront["right"], Speed: 3, PrimaryRelative: true},
			"PlayerGrabbityLockStop":   {HandZones: handFront, Zones: handFront["right"], Speed: 2, PrimaryRelative: true},
			"PlayerGrabbedByBarnacle":  {Zones: backUpper, Speed: 8, Priority: 3},
			"PlayerReleasedByBarnacle": {Zones: backUpper, Speed: 4},
			"PlayerCoughStart":         {Zones: zones{haptics.AllFront}, Speed: 2, Cooldown: 750 * time.Millisecond},
			"PlayerCoughEnd":           {Zones: frontLower, Speed: 1, Cooldown: 250 * time.Millisecond},
			"TwoHandStart":             {Zones: frontUpper, Speed: 2},
			"TwoHandEnd":               {Zones: frontUpper, Speed: 1},
			"Reset":                    {Zones: zones{haptics.All}, Speed: 3, Cooldown: 2 * time.Second},
			"PlayerDropAmmoInBackpack":        {HandZones: backpack, Zones: backpack["right"], Speed: 3},
			"PlayerDropResinInBackpack":       {HandZones: backpack, Zones: backpack["right"], Speed: 3},
			"PlayerRetrievedBackpackClip":     {HandZones: backpack, Zones: backpack["right"], Speed: 4},
			"PlayerStoredItemInItemholder":    {HandZones: backpack, Zones: backpack["right"], Speed: 3},
			"PlayerRemovedItemFromItemholder": {HandZones: backpack, Zones: backpack["right"], Speed: 3},
			"ItemPickup":                      {HandZones: backpack, Zones: backpack["right"], Speed: 3},
			"ItemReleased": {
				HandZones: sides(zones{haptics.FrontLowerLeft}, zones{haptics.FrontLowerRight}),
				Zones:     zones{haptics.FrontLowerRight}, Speed: 2,
			},
			"PlayerPistolClipInserted":   {Zones: frontUpper, Speed: 3},
			"PlayerPistolChamberedRound": {Zones: frontUpper, Speed: 2},
			"PlayerShotgunShellLoaded":   {Zones: frontUpper, Speed: 4},
			"PlayerShotgunLoadedShells":  {Zones: frontUpper, Speed: 4},
			"PlayerShotgunUpgradeGrenadeLauncherState": {
				Zones: frontLower,
				SpeedFn: func(e *domain.GameEvent) int {
					if st, _ := strconv.Atoi(e.Params["state"]); st != 0 {
						return 5
					}
					return 3
				},
			},
		},
		Rename: func(e *domain.GameEvent) string {
			if e.Name != "PlayerHealth" {
				return e.Name
			}
			if e.Health <= alyxLowHealth {
				return "PlayerHealthLow"
			}
			return "PlayerHealthOk"
		},
	}
}

// screenProfile handles the synthetic events produced by the screen
// detectors. health_percent is routed to low_health / health_ok around the
// configured threshold.
func screenProfile(cfg EventsConfig) Profile {
	threshold := cfg.LowHealthPercent
	return Profile{
		Name:       ProfileScreen,
		ForwardCmd: "screen_event",
		KeyParam:   "detector",
		Rules: map[string]EventRule{
			"hit_recorded": {
				Zones: zones{haptics.AllFront},
				Angle: AngleClockwise,
				ZoneFn: func(e *domain.GameEvent) []haptics.Zone {
					if e.Direction == "" {
						return nil
					}
					if z, err := haptics.ParseZone(e.Direction); err == nil {
						return zones{z}
					}
					if a, err := strconv.ParseFloat(e.Direction, 64); err == nil {
						return haptics.ZonesForAngle(a)
					}
					return nil
				},
				SpeedFn: func(e *domain.GameEvent) int {
					if e.Intensity > 0 {
						return haptics.ToSpeed(e.Intensity)
					}
					return 5
				},
				Priority: 3,
			},
			"low_health": {Zones: zones{haptics.FrontLowerLeft, haptics.FrontLowerRight}, Speed: 3, Priority: 4, Sets: latchLowHealth},
			"health_ok":    {Clears: []string{latchLowHealth}},
			"health_value": {},
		},
		Rename: func(e *domain.GameEvent) string {
			if e.Name != "health_percent" {
				return e.Name
			}
			if e.Health <= threshold {
				return "low_health"
			}
			return "health_ok"
		},
	}
}
