package training

// ScheduleState is the position of a run: the current epoch, the global
// iteration, the planned total and the batch index within the epoch.
// Values are immutable; Next and NextEpoch return advanced copies.
type ScheduleState struct {
	Epoch      int
	Iteration  int
	Total      int
	BatchIndex int
}

// NewScheduleState creates the state for the first batch of a run
func NewScheduleState(numEpochs, batchCount int) ScheduleState {
	return ScheduleState{Total: numEpochs * batchCount}
}

// Next advances to the following batch of the same epoch
func (s ScheduleState) Next() ScheduleState {
	s.Iteration++
	s.BatchIndex++
	return s
}

// NextEpoch moves to the first batch of the following epoch
func (s ScheduleState) NextEpoch() ScheduleState {
	s.Epoch++
	s.BatchIndex = 0
	return s
}

// ShouldPrint reports whether a training line is due on the global iteration
func (s ScheduleState) ShouldPrint(every int) bool {
	return s.Iteration%every == 0
}

// ShouldTest reports whether evaluation is due on the batch index within the epoch
func (s ScheduleState) ShouldTest(every int) bool {
	return s.BatchIndex%every == 0
}

// Done reports whether exactly the planned number of iterations has run
func (s ScheduleState) Done() bool {
	return s.Iteration == s.Total
}
