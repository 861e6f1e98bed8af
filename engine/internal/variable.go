package internal

// writeVariables merges the variables of a completed task run into the process variables. The last writer
// wins. A write is reported as conflict, when another task run has written the same variable after the
// task run started, since the completing run has not seen that value.
func (st *step) writeVariables(run *taskRun, variables map[string]any) {
	i := st.instance

	var conflicts int
	for name, value := range variables {
		if w, ok := st.state.writes[name]; ok && w.runId != run.Id && w.seq > run.startSeq {
			i.logger.Warn("variable conflict", "name", name, "run", run.Id, "previousRun", w.runId)
			conflicts++
		}

		st.state.variables[name] = value
		st.state.writes[name] = variableWrite{runId: run.Id, seq: st.state.seq}
	}

	if conflicts != 0 {
		st.effect(func() {
			i.env.Metrics.VariableConflicts.Add(float64(conflicts))
		})
	}
}
