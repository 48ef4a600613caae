package stageiv

import "math"

// HRAP north polar stereographic projection parameters used by the Stage IV
// precipitation grid: spherical earth, true scale at 60N, central meridian
// 105W.
const (
	earthRadiusM    = 6371200.0
	trueScaleLatDeg = 60.0
	centralLonDeg   = -105.0
)

// projectHRAP converts geographic coordinates (degrees) to the raster's
// projected coordinate system (meters). Spherical north polar stereographic
// per Snyder, with the scale factor fixed by the true-scale latitude.
func projectHRAP(lat, lon float64) (x, y float64) {
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	latTS := trueScaleLatDeg * math.Pi / 180
	lon0 := centralLonDeg * math.Pi / 180

	rho := earthRadiusM * (1 + math.Sin(latTS)) * math.Tan(math.Pi/4-latRad/2)

	x = rho * math.Sin(lonRad-lon0)
	y = -rho * math.Cos(lonRad-lon0)
	return x, y
}

// pixelAt maps projected coordinates to the covering pixel's column and row
// by linear interpolation within the raster's bounding box. Row 0 is the
// top (maximum Y) edge. The returned coordinates may be out of bounds;
// callers check against the raster dimensions.
func pixelAt(r *Raster, projX, projY float64) (col, row int) {
	col = int(math.Floor((projX - r.MinX) / (r.MaxX - r.MinX) * float64(r.Width)))
	row = int(math.Floor((r.MaxY - projY) / (r.MaxY - r.MinY) * float64(r.Height)))
	return col, row
}
