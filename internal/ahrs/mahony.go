// Package ahrs implements a Mahony complementary attitude filter. The relay
// feeds it raw gyroscope and accelerometer samples and reads back an
// orientation quaternion for the camera transform entities.
package ahrs

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Mahony holds the filter state. Not safe for concurrent use; the relay
// serializes IMU callbacks.
type Mahony struct {
	// Q is the current orientation estimate (unit quaternion, w first).
	Q quat.Number

	// Kp and Ki are the proportional and integral feedback gains.
	Kp, Ki float64

	// SamplePeriod is the default integration step used when a sample has
	// no usable timestamp delta.
	SamplePeriod float64

	// integral feedback accumulator
	ix, iy, iz float64
}

// DefaultFrequency is the IMU report rate the filter is tuned for.
const DefaultFrequency = 100.0

// New creates a filter for the given sample frequency in Hz, starting from
// the identity orientation with the conventional gains.
func New(frequency float64) *Mahony {
	if frequency <= 0 {
		frequency = 100
	}
	return &Mahony{
		Q:            quat.Number{Real: 1},
		Kp:           1.0,
		Ki:           0.3,
		SamplePeriod: 1 / frequency,
	}
}

// UpdateIMU advances the filter by one gyroscope+accelerometer sample using
// the default sample period. Gyro is rad/s, accel is any consistent unit
// (only its direction is used). It returns the new orientation.
func (m *Mahony) UpdateIMU(gyro, accel [3]float64) quat.Number {
	return m.Update(gyro, accel, m.SamplePeriod)
}

// Update advances the filter by dt seconds.
func (m *Mahony) Update(gyro, accel [3]float64, dt float64) quat.Number {
	gx, gy, gz := gyro[0], gyro[1], gyro[2]

	norm := math.Sqrt(accel[0]*accel[0] + accel[1]*accel[1] + accel[2]*accel[2])
	if norm > 0 {
		ax, ay, az := accel[0]/norm, accel[1]/norm, accel[2]/norm

		// Estimated direction of gravity from the current orientation.
		q := m.Q
		vx := 2 * (q.Imag*q.Kmag - q.Real*q.Jmag)
		vy := 2 * (q.Real*q.Imag + q.Jmag*q.Kmag)
		vz := q.Real*q.Real - q.Imag*q.Imag - q.Jmag*q.Jmag + q.Kmag*q.Kmag

		// Error is the cross product between measured and estimated gravity.
		ex := ay*vz - az*vy
		ey := az*vx - ax*vz
		ez := ax*vy - ay*vx

		if m.Ki > 0 {
			m.ix += ex * dt
			m.iy += ey * dt
			m.iz += ez * dt
		} else {
			m.ix, m.iy, m.iz = 0, 0, 0
		}

		gx += m.Kp*ex + m.Ki*m.ix
		gy += m.Kp*ey + m.Ki*m.iy
		gz += m.Kp*ez + m.Ki*m.iz
	}

	// Integrate the rate of change of the quaternion.
	qDot := quat.Scale(0.5, quat.Mul(m.Q, quat.Number{Imag: gx, Jmag: gy, Kmag: gz}))
	m.Q = quat.Add(m.Q, quat.Scale(dt, qDot))

	if abs := quat.Abs(m.Q); abs > 0 {
		m.Q = quat.Scale(1/abs, m.Q)
	} else {
		m.Q = quat.Number{Real: 1}
	}
	return m.Q
}

// Reset returns the filter to the identity orientation and clears the
// integral term.
func (m *Mahony) Reset() {
	m.Q = quat.Number{Real: 1}
	m.ix, m.iy, m.iz = 0, 0, 0
}

// Quaternion returns the current orientation as [w, x, y, z].
func (m *Mahony) Quaternion() [4]float64 {
	return [4]float64{m.Q.Real, m.Q.Imag, m.Q.Jmag, m.Q.Kmag}
}
