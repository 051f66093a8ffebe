/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package layers

// TimeSpec is a point on the device clock: integer seconds plus
// fractional ticks of the master clock. Comparison is exact on the
// (FullSecs, FracTicks) pair, never on floating seconds.
type TimeSpec struct {
	FullSecs  int64
	FracTicks uint64
	TickRate  float64
}

// NewTimeSpec builds a TimeSpec from the tsi/tsf words of an IF header.
func NewTimeSpec(tsi uint32, tsf uint64, tickRate float64) TimeSpec {
	return TimeSpec{
		FullSecs:  int64(tsi),
		FracTicks: tsf,
		TickRate:  tickRate,
	}
}

func (t TimeSpec) Equal(o TimeSpec) bool {
	return t.FullSecs == o.FullSecs && t.FracTicks == o.FracTicks
}

func (t TimeSpec) Less(o TimeSpec) bool {
	if t.FullSecs != o.FullSecs {
		return t.FullSecs < o.FullSecs
	}
	return t.FracTicks < o.FracTicks
}

// Seconds returns the time as floating seconds. For display only,
// never for comparison.
func (t TimeSpec) Seconds() float64 {
	if t.TickRate == 0 {
		return float64(t.FullSecs)
	}
	return float64(t.FullSecs) + float64(t.FracTicks)/t.TickRate
}

// Ticks returns the tsi/tsf words to put on the wire.
func (t TimeSpec) Ticks() (uint32, uint64) {
	return uint32(t.FullSecs), t.FracTicks
}
