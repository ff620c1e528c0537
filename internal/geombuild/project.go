package geombuild

import (
	"math"

	"github.com/rotisserie/eris"
)

// GRS80 ellipsoid constants (NAD83 datum).
const (
	grs80A        = 6378137.0
	grs80Flat     = 1.0 / 298.257222101
	maxConvIters  = 15
	convTolerance = 1e-11
)

// Projection converts between geographic (lat/lng, degrees) and planar
// (easting/northing, meters) coordinates using a Lambert conformal conic
// with two standard parallels. The source datasets ship in a planar CRS of
// this family; the metadata endpoint wants WGS84.
type Projection struct {
	n    float64 // cone constant
	f    float64 // scaled cone factor
	rho0 float64 // radius at the latitude of origin
	lng0 float64 // central meridian, radians
	fe   float64 // false easting
	fn   float64 // false northing
	e    float64 // first eccentricity
}

// ProjectionParams holds the Lambert conic parameters, all angles in degrees.
type ProjectionParams struct {
	LatOrigin     float64
	LngOrigin     float64
	StdParallel1  float64
	StdParallel2  float64
	FalseEasting  float64
	FalseNorthing float64
}

// NewProjection builds a Projection from the given parameters.
func NewProjection(p ProjectionParams) (*Projection, error) {
	if p.StdParallel1 == -p.StdParallel2 {
		return nil, eris.New("projection: standard parallels must not be opposite")
	}

	e2 := grs80Flat * (2 - grs80Flat)
	e := math.Sqrt(e2)

	phi0 := p.LatOrigin * math.Pi / 180
	phi1 := p.StdParallel1 * math.Pi / 180
	phi2 := p.StdParallel2 * math.Pi / 180

	m1 := lccM(phi1, e)
	m2 := lccM(phi2, e)
	t0 := lccT(phi0, e)
	t1 := lccT(phi1, e)
	t2 := lccT(phi2, e)

	var n float64
	if phi1 == phi2 {
		n = math.Sin(phi1)
	} else {
		n = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	}
	if n == 0 {
		return nil, eris.New("projection: degenerate cone constant")
	}

	f := m1 / (n * math.Pow(t1, n))

	return &Projection{
		n:    n,
		f:    f,
		rho0: grs80A * f * math.Pow(t0, n),
		lng0: p.LngOrigin * math.Pi / 180,
		fe:   p.FalseEasting,
		fn:   p.FalseNorthing,
		e:    e,
	}, nil
}

// Forward converts geographic lat/lng (degrees) to planar x/y (meters).
func (p *Projection) Forward(lat, lng float64) (x, y float64) {
	phi := lat * math.Pi / 180
	lam := lng * math.Pi / 180

	rho := grs80A * p.f * math.Pow(lccT(phi, p.e), p.n)
	theta := p.n * (lam - p.lng0)

	x = p.fe + rho*math.Sin(theta)
	y = p.fn + p.rho0 - rho*math.Cos(theta)
	return x, y
}

// Inverse converts planar x/y (meters) to geographic lat/lng (degrees).
func (p *Projection) Inverse(x, y float64) (lat, lng float64) {
	dx := x - p.fe
	dy := p.rho0 - (y - p.fn)

	rho := math.Hypot(dx, dy)
	if p.n < 0 {
		rho = -rho
		dx = -dx
		dy = -dy
	}

	theta := math.Atan2(dx, dy)
	lam := theta/p.n + p.lng0

	t := math.Pow(rho/(grs80A*p.f), 1/p.n)

	// Iterate for the latitude from the isometric parameter t.
	phi := math.Pi/2 - 2*math.Atan(t)
	for range maxConvIters {
		es := p.e * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-es)/(1+es), p.e/2))
		if math.Abs(next-phi) < convTolerance {
			phi = next
			break
		}
		phi = next
	}

	return phi * 180 / math.Pi, lam * 180 / math.Pi
}

func lccM(phi, e float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-e*e*s*s)
}

func lccT(phi, e float64) float64 {
	s := math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-e*s)/(1+e*s), e/2)
}
