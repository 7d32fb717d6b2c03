package multibody

import (
	"github.com/notargets/gombd/spatial"
	"github.com/notargets/gombd/utils"
)

// The articulated-body recursion. Given position-stage quantities
//
//	Mk  (spatial inertia about the body origin)
//	Phi (child-to-parent shift)
//	H   (joint transition operator)
//
// compute
//
//	P      (articulated body inertia)
//	D      (H*P*~H, the factored mass matrix diagonal block)
//	DI     (inverse of D)
//	G      (P*~H*DI)
//	tauBar (1 - G*H)
//	Psi    (Phi*tauBar, the articulated child-to-parent shift)
//
// Must be called tip to base: every child's P, tauBar and Phi must already
// be valid.
func (n *Node) calcArticulatedBodyInertiasInward(cc *ConfigCache, dc *DynamicsCache) error {
	if n.isGround() {
		return nil
	}
	i := n.nodeNum

	p := cc.Mk[i]
	for _, c := range n.child {
		j := c.nodeNum
		p = p.Add(cc.Phi[j].Congruence(dc.TauBar[j].Mul(dc.P[j])))
	}
	dc.P[i] = p

	h := cc.H[i]
	dof := h.DOF()

	// PHt columns, then D = H*PHt.
	pht := make([]spatial.SpatialVec, dof)
	for j := 0; j < dof; j++ {
		pht[j] = p.MulVec(h.Rows[j])
	}
	d := utils.NewMatrix(dof, dof)
	for r := 0; r < dof; r++ {
		for c := 0; c < dof; c++ {
			d.Set(r, c, h.Rows[r].Dot(pht[c]))
		}
	}
	dc.D[i] = d

	// The factorization is the numerical failure point of the whole
	// recursion: a D that is not positive definite means the outboard mass
	// distribution cannot carry this joint's freedoms.
	di, err := d.InverseSPD()
	if err != nil {
		return &IllConditionedError{Body: i, Joint: n.jointType, Wrapped: err}
	}
	dc.DI[i] = di

	g := make([]spatial.SpatialVec, dof)
	for c := 0; c < dof; c++ {
		var col spatial.SpatialVec
		for j := 0; j < dof; j++ {
			col = col.Add(pht[j].Scale(di.At(j, c)))
		}
		g[c] = col
	}
	dc.G[i] = g

	tauBar := spatial.IdentitySpatialMat()
	for j := 0; j < dof; j++ {
		tauBar = tauBar.Sub(spatial.SpatialOuter(g[j], h.Rows[j]))
	}
	dc.TauBar[i] = tauBar
	dc.Psi[i] = cc.Phi[i].MulMat(tauBar)
	return nil
}

// calcYOutward computes the compliance accumulator consumed by the
// constraint solver: Y = ~H*DI*H + ~Psi*Yparent*Psi. Base to tip.
func (n *Node) calcYOutward(cc *ConfigCache, dc *DynamicsCache) {
	if n.isGround() {
		dc.Y[0] = spatial.SpatialMat{}
		return
	}
	i := n.nodeNum
	h := cc.H[i]
	di := dc.DI[i]

	var y spatial.SpatialMat
	for r := 0; r < h.DOF(); r++ {
		for c := 0; c < h.DOF(); c++ {
			y = y.Add(spatial.SpatialOuter(h.Rows[r], h.Rows[c]).Scale(di.At(r, c)))
		}
	}
	psi := dc.Psi[i]
	yp := dc.Y[n.parent.nodeNum]
	dc.Y[i] = y.Add(psi.Transpose().Mul(yp).Mul(psi))
}

// calcZ accumulates the force recursion against the reaction cache. Tip to
// base; spatialForce is the applied spatial force on this body,
// jointForces the u-parallel applied generalized forces.
func (n *Node) calcZ(cc *ConfigCache, dc *DynamicsCache, jointForces []float64, spatialForce spatial.SpatialVec, rc *ReactionCache) {
	i := n.nodeNum
	if n.isGround() {
		rc.Z[0] = spatial.SpatialVec{}
		rc.GEps[0] = spatial.SpatialVec{}
		return
	}
	z := dc.CentrifugalForce[i].Sub(spatialForce)
	for _, c := range n.child {
		j := c.nodeNum
		z = z.Add(cc.Phi[j].MulVec(rc.Z[j].Add(rc.GEps[j])))
	}
	rc.Z[i] = z

	h := cc.H[i]
	eps := n.uSlice(rc.Epsilon)
	hz := h.MulVec(z)
	for k := range eps {
		eps[k] = n.uSlice(jointForces)[k] - hz[k]
	}
	copySlice(n.uSlice(rc.Nu), dc.DI[i].MulSlice(eps))

	var geps spatial.SpatialVec
	for k, gcol := range dc.G[i] {
		geps = geps.Add(gcol.Scale(eps[k]))
	}
	rc.GEps[i] = geps
}

// calcAccel resolves this node's generalized and spatial accelerations from
// the nu computed by the last calcZ. Base to tip.
func (n *Node) calcAccel(vars ModelVars, q []float64, cc *ConfigCache, u []float64, dc *DynamicsCache, rc *ReactionCache, udot, qdotdot []float64) {
	i := n.nodeNum
	if n.isGround() {
		rc.AGB[0] = spatial.SpatialVec{}
		return
	}
	alphaP := cc.Phi[i].TransMulVec(rc.AGB[n.parent.nodeNum])

	ud := n.uSlice(udot)
	for k, gcol := range dc.G[i] {
		ud[k] = n.uSlice(rc.Nu)[k] - gcol.Dot(alphaP)
	}
	rc.AGB[i] = alphaP.Add(cc.H[i].TransMulSlice(ud)).Add(dc.CoriolisAccel[i])

	n.mob.calcQDotDot(vars.UseEulerAngles, n.qSlice(q), cc.XJbJ[i], n.uSlice(u), ud, n.qSlice(qdotdot))
}

// calcUDotPass1Inward is the array-parametrized form of calcZ: same math,
// caller-supplied temporaries, so repeated solves against different force
// sets reuse the dynamics-stage P/D/G. Tip to base.
func (n *Node) calcUDotPass1Inward(cc *ConfigCache, dc *DynamicsCache,
	jointForces []float64, bodyForces []spatial.SpatialVec,
	allZ, allGEps []spatial.SpatialVec, allEpsilon []float64) {

	i := n.nodeNum
	if n.isGround() {
		allZ[0] = bodyForces[0].Neg()
		allGEps[0] = spatial.SpatialVec{}
		return
	}
	z := dc.CentrifugalForce[i].Sub(bodyForces[i])
	for _, c := range n.child {
		j := c.nodeNum
		z = z.Add(cc.Phi[j].MulVec(allZ[j].Add(allGEps[j])))
	}
	allZ[i] = z

	eps := n.uSlice(allEpsilon)
	hz := cc.H[i].MulVec(z)
	for k := range eps {
		eps[k] = n.uSlice(jointForces)[k] - hz[k]
	}
	var geps spatial.SpatialVec
	for k, gcol := range dc.G[i] {
		geps = geps.Add(gcol.Scale(eps[k]))
	}
	allGEps[i] = geps
}

// calcUDotPass2Outward resolves accelerations from the epsilons reduced by
// pass 1. Base to tip; allAGB need not be initialized.
func (n *Node) calcUDotPass2Outward(cc *ConfigCache, dc *DynamicsCache,
	allEpsilon []float64, allAGB []spatial.SpatialVec, allUDot []float64) {

	i := n.nodeNum
	if n.isGround() {
		allAGB[0] = spatial.SpatialVec{}
		return
	}
	var alphaP spatial.SpatialVec
	if !n.parent.isGround() {
		alphaP = cc.Phi[i].TransMulVec(allAGB[n.parent.nodeNum])
	}
	ud := n.uSlice(allUDot)
	copySlice(ud, dc.DI[i].MulSlice(n.uSlice(allEpsilon)))
	for k, gcol := range dc.G[i] {
		ud[k] -= gcol.Dot(alphaP)
	}
	allAGB[i] = alphaP.Add(cc.H[i].TransMulSlice(ud)).Add(dc.CoriolisAccel[i])
}

// calcEquivalentJointForces propagates applied body forces tip to base into
// the generalized joint forces that would produce them; pure inverse
// dynamics, no accelerations. The accumulation is the plain force shift
// f = ~J*F: feeding back the net body forces Mk*A + gyro from a forward
// solve recovers the joint forces that produced it exactly.
func (n *Node) calcEquivalentJointForces(cc *ConfigCache,
	bodyForces, allZ []spatial.SpatialVec, jointForces []float64) {

	i := n.nodeNum
	if n.isGround() {
		allZ[0] = bodyForces[0]
		return
	}
	z := bodyForces[i]
	for _, c := range n.child {
		z = z.Add(cc.Phi[c.nodeNum].MulVec(allZ[c.nodeNum]))
	}
	allZ[i] = z
	copySlice(n.uSlice(jointForces), cc.H[i].MulVec(z))
}

// calcInternalGradientFromSpatial projects a per-body spatial quantity X
// onto generalized-coordinate space: JX = ~J*X by the same tip-to-base
// accumulation. Needs only configuration-stage Phi and H.
func (n *Node) calcInternalGradientFromSpatial(cc *ConfigCache,
	zTmp, x []spatial.SpatialVec, jx []float64) {

	i := n.nodeNum
	if n.isGround() {
		return
	}
	z := x[i]
	for _, c := range n.child {
		z = z.Add(cc.Phi[c.nodeNum].MulVec(zTmp[c.nodeNum]))
	}
	zTmp[i] = z
	copySlice(n.uSlice(jx), cc.H[i].MulVec(z))
}

// setVelFromSVel back-solves this node's generalized speeds so the body
// attains the given total spatial velocity. Base to tip: the parent's
// velocity must already be final.
func (n *Node) setVelFromSVel(cc *ConfigCache, mc *MotionCache, sVel spatial.SpatialVec, u []float64) {
	if n.isGround() {
		return
	}
	i := n.nodeNum
	rel := sVel.Sub(cc.Phi[i].TransMulVec(mc.VGB[n.parent.nodeNum]))
	copySlice(n.uSlice(u), cc.H[i].MulVec(rel))
}
