package projection

import (
	"fmt"
	"math"

	"github.com/wroge/wgs84"
)

const epsgLonLat = 4326

// epsgProjector delegates to the wgs84 EPSG repository.
type epsgProjector struct {
	to, from wgs84.Func
}

func newEPSGProjector(code int) (*epsgProjector, error) {
	repo := wgs84.EPSG()
	p := &epsgProjector{
		to:   repo.Transform(epsgLonLat, code),
		from: repo.Transform(code, epsgLonLat),
	}
	// unknown codes transform to NaN
	if x, y := p.forward(0, 0); math.IsNaN(x) || math.IsNaN(y) {
		return nil, fmt.Errorf("epsg %d is not known", code)
	}
	return p, nil
}

func (p *epsgProjector) forward(lon, lat float64) (float64, float64) {
	x, y, _ := p.to(lon, lat, 0)
	return x, y
}

func (p *epsgProjector) inverse(x, y float64) (float64, float64) {
	lon, lat, _ := p.from(x, y, 0)
	return lon, lat
}
